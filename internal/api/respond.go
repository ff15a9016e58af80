package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/discovery"
)

// Error codes returned in the error payload.
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeNotPromotable   = "NOT_PROMOTABLE"
	ErrCodeSpaceRequired   = "SPACE_SELECTION_REQUIRED"
	ErrCodeNoActiveBatch   = "NO_ACTIVE_BATCH"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeDiscoveryError maps the discovery error taxonomy onto HTTP statuses.
func writeDiscoveryError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *discovery.ValidationError
		config     *discovery.ConfigurationError
		conflict   *discovery.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		details := map[string]any{"entry_id": validation.EntryID}
		if len(validation.Fields) > 0 {
			details["fields"] = validation.Fields
		}
		writeError(w, r, http.StatusUnprocessableEntity, ErrCodeValidation, validation.Error(), details)
	case errors.As(err, &config):
		writeError(w, r, http.StatusUnprocessableEntity, ErrCodeConfiguration, config.Error(), map[string]any{
			"entry_id": config.EntryID,
			"hint":     config.Hint,
		})
	case errors.As(err, &conflict):
		writeError(w, r, http.StatusConflict, ErrCodeConflict, conflict.Error(), map[string]any{
			"op":  conflict.Op,
			"key": conflict.Key,
		})
	case errors.Is(err, discovery.ErrSpaceSelectionRequired):
		writeError(w, r, http.StatusUnprocessableEntity, ErrCodeSpaceRequired, "select a research space before promoting", nil)
	case errors.Is(err, discovery.ErrNotPromotable):
		writeError(w, r, http.StatusUnprocessableEntity, ErrCodeNotPromotable, "only successful results can be promoted", nil)
	case errors.Is(err, discovery.ErrUnknownEntry):
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown catalog entry", nil)
	case errors.Is(err, discovery.ErrUnknownResult):
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown test result", nil)
	default:
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error", nil)
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r.Body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
