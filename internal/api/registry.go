package api

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/discovery-console/internal/discovery"
)

// Registry keeps one workbench per user so batch flags, entry locks and
// promotion guards are scoped to that user's session.
type Registry struct {
	deps discovery.Deps

	// opening collapses concurrent first requests of one user into a single
	// Open; other users never wait on it.
	opening singleflight.Group

	mu      sync.Mutex
	benches map[string]*discovery.Workbench
}

// NewRegistry creates a Registry that opens workbenches with deps.
func NewRegistry(deps discovery.Deps) *Registry {
	return &Registry{
		deps:    deps,
		benches: make(map[string]*discovery.Workbench),
	}
}

// Get returns the user's workbench, opening it on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*discovery.Workbench, error) {
	if wb, ok := r.cached(userID); ok {
		return wb, nil
	}

	v, err, _ := r.opening.Do(userID, func() (any, error) {
		if wb, ok := r.cached(userID); ok {
			return wb, nil
		}
		wb, err := discovery.Open(ctx, r.deps, userID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.benches[userID] = wb
		r.mu.Unlock()
		return wb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*discovery.Workbench), nil
}

func (r *Registry) cached(userID string) (*discovery.Workbench, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wb, ok := r.benches[userID]
	return wb, ok
}

// Evict drops the cached workbench for userID so the next request reloads
// the catalog and session.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.benches, userID)
}

// Len returns the number of open workbenches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.benches)
}
