// Package api exposes the discovery workbench over HTTP for the console
// frontend. Authentication happens upstream; the caller's identity arrives
// in the X-User-ID header.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

// Options configures the router.
type Options struct {
	// AllowedOrigins lists the origins the console frontend is served from.
	AllowedOrigins []string
}

// Server holds the workbench registry and serves the console API.
type Server struct {
	registry *Registry
	opts     Options
	// baseCtx outlives individual requests; background batches run under it.
	baseCtx context.Context
	batches sync.WaitGroup
}

// NewServer creates a Server. Batches started through the API are bound to
// ctx and stop when it is cancelled.
func NewServer(ctx context.Context, registry *Registry, opts Options) *Server {
	return &Server{registry: registry, opts: opts, baseCtx: ctx}
}

// Wait blocks until every batch started through the API has finished
// recording its results, or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.batches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", UserHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/catalog", s.handleCatalog)

		r.Route("/discovery", func(r chi.Router) {
			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleSession)
				r.Post("/reload", s.handleReload)
				r.Put("/selection", s.handleSelection)
				r.Put("/space", s.handleSpace)
				r.Put("/sources/{entryID}/parameters", s.handleParameters)
				r.Put("/sources/{entryID}/settings", s.handleSettings)
				r.Post("/sources/{entryID}/test", s.handleRunOne)
				r.Post("/tests", s.handleRunAll)
				r.Delete("/tests", s.handleCancel)
				r.Get("/results", s.handleResults)
			})
			r.Post("/results/{resultID}/promote", s.handlePromote)
		})
	})

	return r
}

type ctxKey int

const userKey ctxKey = iota

// requireUser rejects requests without a user id and stores it on the context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthenticated, "missing "+UserHeader+" header", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
