package api

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

// CatalogItem is one catalog entry as shown on the workbench.
type CatalogItem struct {
	Entry    model.CatalogEntry         `json:"entry"`
	Rules    discovery.FieldRules       `json:"rules"`
	Required discovery.RequiredFieldSet `json:"required"`
	Runnable bool                       `json:"runnable"`
	Running  bool                       `json:"running"`
}

// SessionView is the resolved session state returned to the frontend.
type SessionView struct {
	SessionID         string                            `json:"session_id"`
	UserID            string                            `json:"user_id"`
	SelectedSourceIDs []string                          `json:"selected_source_ids"`
	Parameters        map[string]model.QueryParameters  `json:"parameters"`
	Settings          map[string]model.AdvancedSettings `json:"advanced_settings"`
	CurrentSpaceID    string                            `json:"current_space_id,omitempty"`
	BatchActive       bool                              `json:"batch_active"`
	Running           []string                          `json:"running"`
}

// ResultsView is the reconciled status of the session's sources. Promoting
// lists result ids with a promotion in flight.
type ResultsView struct {
	Latest     map[string]model.TestResult `json:"latest"`
	Summary    discovery.StatusSummary     `json:"summary"`
	Promotable []model.TestResult          `json:"promotable"`
	Promoting  []string                    `json:"promoting"`
	History    []model.TestResult          `json:"history,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"workbenches": s.registry.Len(),
	})
}

// workbench resolves the caller's workbench, writing the error response on failure.
func (s *Server) workbench(w http.ResponseWriter, r *http.Request) (*discovery.Workbench, bool) {
	wb, err := s.registry.Get(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeDiscoveryError(w, r, err)
		return nil, false
	}
	return wb, true
}

// GET /api/catalog[?capability=organism]
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	entries := wb.Matrix().Entries()
	if name := r.URL.Query().Get("capability"); name != "" {
		capability, known := parseCapability(name)
		if !known {
			writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown capability "+name, nil)
			return
		}
		entries = make([]model.CatalogEntry, 0, len(entries))
		for _, id := range wb.Matrix().Supporting(capability) {
			e, _ := wb.Matrix().Entry(id)
			entries = append(entries, e)
		}
	}

	items := make([]CatalogItem, 0, len(entries))
	for _, e := range entries {
		rules, _ := wb.Matrix().Rules(e.ID)
		items = append(items, CatalogItem{
			Entry:    e,
			Rules:    rules,
			Required: discovery.RequiredFields(e),
			Runnable: wb.Check(e.ID) == nil,
			Running:  wb.Running(e.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

// GET /api/discovery/session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(wb))
}

// POST /api/discovery/session/reload drops the cached workbench so catalog
// and session changes made elsewhere (catalog import, another console) are
// picked up.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	if wb.BatchActive() {
		writeError(w, r, http.StatusConflict, ErrCodeConflict, "cannot reload while a batch is running", nil)
		return
	}
	s.registry.Evict(wb.UserID())

	wb, ok = s.workbench(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(wb))
}

// PUT /api/discovery/session/selection
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	var req struct {
		SourceIDs []string `json:"source_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := wb.Select(r.Context(), req.SourceIDs); err != nil {
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(wb))
}

// PUT /api/discovery/session/sources/{entryID}/parameters
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	entryID := chi.URLParam(r, "entryID")

	var params model.QueryParameters
	if !decodeBody(w, r, &params) {
		return
	}
	if err := wb.SetParameters(r.Context(), entryID, params); err != nil {
		writeDiscoveryError(w, r, err)
		return
	}

	resp := map[string]any{
		"entry_id":   entryID,
		"parameters": wb.Parameters(entryID),
		"runnable":   true,
	}
	if err := wb.Check(entryID); err != nil {
		resp["runnable"] = false
		resp["reason"] = err.Error()
		var validation *discovery.ValidationError
		if errors.As(err, &validation) {
			resp["missing"] = validation.Fields
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PUT /api/discovery/session/sources/{entryID}/settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	entryID := chi.URLParam(r, "entryID")

	var settings model.AdvancedSettings
	if !decodeBody(w, r, &settings) {
		return
	}
	if err := wb.SetSettings(r.Context(), entryID, settings); err != nil {
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":          entryID,
		"advanced_settings": wb.Settings(entryID),
	})
}

// POST /api/discovery/session/sources/{entryID}/test
func (s *Server) handleRunOne(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	res, err := wb.RunOne(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/discovery/session/tests
func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	log := zap.L().With(
		zap.String("component", "api"),
		zap.String("user_id", wb.UserID()),
		zap.String("session_id", wb.SessionID()),
	)

	s.batches.Add(1)
	n, err := wb.StartAll(s.baseCtx, func(summary discovery.BatchSummary, err error) {
		defer s.batches.Done()
		if err != nil {
			log.Warn("batch run failed", zap.Error(err))
			return
		}
		log.Info("batch run complete",
			zap.Int("attempted", summary.Attempted),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("cancelled", summary.Cancelled),
		)
	})
	if err != nil {
		s.batches.Done()
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"sources": n,
	})
}

// DELETE /api/discovery/session/tests
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	if !wb.CancelBatch() {
		writeError(w, r, http.StatusConflict, ErrCodeNoActiveBatch, "no batch is running", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// GET /api/discovery/session/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	latest := wb.Latest()
	view := ResultsView{
		Latest:     latest,
		Summary:    discovery.Summarize(latest),
		Promotable: discovery.Promotable(latest, wb.Selected()),
		Promoting:  []string{},
	}
	for _, res := range latest {
		if wb.PromotionInFlight(res.ID) {
			view.Promoting = append(view.Promoting, res.ID)
		}
	}
	sort.Strings(view.Promoting)
	if r.URL.Query().Get("history") == "true" {
		view.History = wb.History()
	}
	writeJSON(w, http.StatusOK, view)
}

// PUT /api/discovery/session/space
func (s *Server) handleSpace(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	var req struct {
		SpaceID string `json:"space_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SpaceID) == "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "space_id is required", nil)
		return
	}
	if err := wb.SetCurrentSpace(r.Context(), strings.TrimSpace(req.SpaceID)); err != nil {
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(wb))
}

// POST /api/discovery/results/{resultID}/promote
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	var req struct {
		SpaceID string `json:"space_id"`
	}
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error(), nil)
		return
	}

	resultID := chi.URLParam(r, "resultID")
	spaceID, err := wb.Promote(r.Context(), resultID, req.SpaceID)
	if err != nil {
		writeDiscoveryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":    "promoted",
		"result_id": resultID,
		"space_id":  spaceID,
	})
}

func sessionView(wb *discovery.Workbench) SessionView {
	selected := wb.Selected()
	view := SessionView{
		SessionID:         wb.SessionID(),
		UserID:            wb.UserID(),
		SelectedSourceIDs: selected,
		Parameters:        make(map[string]model.QueryParameters, len(selected)),
		Settings:          make(map[string]model.AdvancedSettings, len(selected)),
		CurrentSpaceID:    wb.CurrentSpace(),
		BatchActive:       wb.BatchActive(),
		Running:           []string{},
	}
	for _, id := range selected {
		view.Parameters[id] = wb.Parameters(id)
		view.Settings[id] = wb.Settings(id)
		if wb.Running(id) {
			view.Running = append(view.Running, id)
		}
	}
	return view
}

func parseCapability(name string) (model.Capability, bool) {
	name = strings.TrimPrefix(name, "supports_")
	for _, c := range model.AllCapabilities {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// decodeOptionalBody decodes a JSON body that may be absent.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := decodeJSON(r.Body, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
