package discovery

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/discovery-console/internal/model"
)

// Deps are the collaborators a Workbench needs.
type Deps struct {
	Catalog     CatalogProvider
	Sessions    SessionStore
	Results     ResultStore
	Executor    Executor
	Attacher    SpaceAttacher
	Credentials CredentialSet
	Runner      RunnerConfig
	// Defaults are the parameters used for entries the session has no override for.
	Defaults map[string]model.QueryParameters
}

// Workbench is the session-scoped context for one user's discovery work:
// catalog snapshot, resolved session, parameter overrides, result history,
// and the runner and promotion guards that belong to that session. Every
// operation goes through a Workbench; nothing is kept in package state.
type Workbench struct {
	userID    string
	sessionID string
	matrix    *CapabilityMatrix
	sessions  SessionStore
	results   ResultStore
	runner    *Runner
	gateway   *PromotionGateway
	defaults  map[string]model.QueryParameters
	log       *zap.Logger

	mu           sync.Mutex
	selected     []string
	params       map[string]model.QueryParameters
	settings     map[string]model.AdvancedSettings
	currentSpace string
	history      []model.TestResult
	latest       map[string]model.TestResult
	cancelBatch  context.CancelFunc
}

// Open loads the catalog and the user's sessions, resolves the active
// session (creating one when the user has none), and loads its results.
func Open(ctx context.Context, deps Deps, userID string) (*Workbench, error) {
	if userID == "" {
		return nil, eris.New("discovery: user id is required")
	}

	var (
		entries  []model.CatalogEntry
		sessions []model.DiscoverySession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = deps.Catalog.ListCatalogEntries(gctx)
		return eris.Wrap(err, "discovery: list catalog entries")
	})
	g.Go(func() error {
		var err error
		sessions, err = deps.Sessions.ListSessions(gctx, userID)
		return eris.Wrap(err, "discovery: list sessions")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matrix := NewCapabilityMatrix(entries)
	res := Resolve(sessions, deps.Defaults)

	log := zap.L().With(zap.String("component", "workbench"), zap.String("user_id", userID))

	if !res.Found() {
		sess, err := deps.Sessions.CreateSession(ctx, model.SessionInit{
			UserID:     userID,
			Parameters: deps.Defaults,
		})
		if err != nil {
			return nil, eris.Wrap(err, "discovery: create session")
		}
		res.SessionID = sess.ID
		log.Info("created discovery session", zap.String("session_id", sess.ID))
	} else if len(sessions) > 1 {
		log.Debug("resolved active session",
			zap.String("session_id", res.SessionID),
			zap.Int("candidates", len(sessions)),
		)
	}

	var selected []string
	for _, id := range res.SelectedSourceIDs {
		if _, ok := matrix.Entry(id); !ok {
			log.Warn("dropping selected source missing from catalog", zap.String("entry_id", id))
			continue
		}
		selected = append(selected, id)
	}

	history, err := deps.Results.ListResults(ctx, res.SessionID)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list results")
	}

	return &Workbench{
		userID:       userID,
		sessionID:    res.SessionID,
		matrix:       matrix,
		sessions:     deps.Sessions,
		results:      deps.Results,
		runner:       NewRunner(deps.Executor, deps.Credentials, deps.Runner),
		gateway:      NewPromotionGateway(deps.Attacher),
		defaults:     deps.Defaults,
		log:          log.With(zap.String("session_id", res.SessionID)),
		selected:     selected,
		params:       res.Parameters,
		settings:     res.Settings,
		currentSpace: res.CurrentSpaceID,
		history:      history,
		latest:       LatestPerSource(history),
	}, nil
}

// UserID returns the owner of the workbench.
func (w *Workbench) UserID() string { return w.userID }

// SessionID returns the active session id.
func (w *Workbench) SessionID() string { return w.sessionID }

// Matrix returns the catalog snapshot for the session.
func (w *Workbench) Matrix() *CapabilityMatrix { return w.matrix }

// Selected returns the selected source ids in selection order.
func (w *Workbench) Selected() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.selected))
	copy(out, w.selected)
	return out
}

// Select replaces the selection. Duplicates are dropped keeping the first
// occurrence; unknown ids are rejected.
func (w *Workbench) Select(ctx context.Context, ids []string) error {
	seen := make(map[string]bool, len(ids))
	selected := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := w.matrix.Entry(id); !ok {
			return eris.Wrapf(ErrUnknownEntry, "select %s", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}

	if err := w.sessions.UpdateSelection(ctx, w.sessionID, selected); err != nil {
		return eris.Wrap(err, "discovery: update selection")
	}

	w.mu.Lock()
	w.selected = selected
	w.mu.Unlock()
	return nil
}

// Parameters returns the current parameters for entryID.
func (w *Workbench) Parameters(entryID string) model.QueryParameters {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.params[entryID]; ok {
		return p
	}
	return w.defaults[entryID]
}

// SetParameters stores a parameter override for entryID.
func (w *Workbench) SetParameters(ctx context.Context, entryID string, p model.QueryParameters) error {
	if _, ok := w.matrix.Entry(entryID); !ok {
		return eris.Wrapf(ErrUnknownEntry, "set parameters %s", entryID)
	}

	w.mu.Lock()
	w.params[entryID] = p
	params, settings := w.snapshotOverrides()
	w.mu.Unlock()

	return eris.Wrap(w.sessions.SaveOverrides(ctx, w.sessionID, params, settings), "discovery: save parameters")
}

// Settings returns the advanced settings for entryID, defaults when unset.
func (w *Workbench) Settings(entryID string) model.AdvancedSettings {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.settings[entryID]; ok {
		return s
	}
	return model.DefaultAdvancedSettings()
}

// SetSettings validates and stores advanced settings for entryID.
func (w *Workbench) SetSettings(ctx context.Context, entryID string, s model.AdvancedSettings) error {
	if _, ok := w.matrix.Entry(entryID); !ok {
		return eris.Wrapf(ErrUnknownEntry, "set settings %s", entryID)
	}
	if err := ValidateSettings(entryID, s); err != nil {
		return err
	}

	w.mu.Lock()
	w.settings[entryID] = normalizeSettings(s)
	params, settings := w.snapshotOverrides()
	w.mu.Unlock()

	return eris.Wrap(w.sessions.SaveOverrides(ctx, w.sessionID, params, settings), "discovery: save settings")
}

// Check validates entryID with its current parameters.
func (w *Workbench) Check(entryID string) error {
	entry, ok := w.matrix.Entry(entryID)
	if !ok {
		return eris.Wrapf(ErrUnknownEntry, "check %s", entryID)
	}
	return Check(entry, w.Parameters(entryID), w.runner.creds)
}

// RunOne tests a single source with its current parameters. It may be
// called while a batch is active.
func (w *Workbench) RunOne(ctx context.Context, entryID string) (model.TestResult, error) {
	job, err := w.job(entryID)
	if err != nil {
		return model.TestResult{}, err
	}

	res, err := w.runner.RunOne(ctx, job)
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return res, err
	}
	w.record(ctx, res)
	return res, err
}

// RunAll tests every selected source in selection order. It blocks until
// the batch finishes or is cancelled through CancelBatch or ctx.
func (w *Workbench) RunAll(ctx context.Context) (BatchSummary, error) {
	run, err := w.claimBatch(ctx)
	if err != nil {
		return BatchSummary{}, err
	}
	return run()
}

// StartAll claims the batch and runs it in the background, calling done
// with the outcome. It returns the number of queued sources, or a
// ConflictError when a batch is already active for the session.
func (w *Workbench) StartAll(ctx context.Context, done func(BatchSummary, error)) (int, error) {
	run, err := w.claimBatch(ctx)
	if err != nil {
		return 0, err
	}
	n := len(w.Selected())
	go func() {
		summary, err := run()
		if done != nil {
			done(summary, err)
		}
	}()
	return n, nil
}

// claimBatch marks the batch active and returns the function that runs it.
// The batch flag is released when that function returns.
func (w *Workbench) claimBatch(ctx context.Context) (func() (BatchSummary, error), error) {
	w.mu.Lock()
	if w.cancelBatch != nil {
		w.mu.Unlock()
		return nil, &ConflictError{Op: "batch run", Key: w.sessionID}
	}
	batchCtx, cancel := context.WithCancel(ctx)
	w.cancelBatch = cancel
	selected := make([]string, len(w.selected))
	copy(selected, w.selected)
	w.mu.Unlock()

	release := func() {
		cancel()
		w.mu.Lock()
		w.cancelBatch = nil
		w.mu.Unlock()
	}

	jobs := make([]Job, 0, len(selected))
	for _, id := range selected {
		job, err := w.job(id)
		if err != nil {
			release()
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return func() (BatchSummary, error) {
		defer release()
		// Cancelled members are still persisted after ctx ends.
		saveCtx := context.WithoutCancel(ctx)
		return w.runner.RunAll(batchCtx, jobs, func(res model.TestResult) {
			w.record(saveCtx, res)
		})
	}, nil
}

// CancelBatch stops the active batch before its next source. It reports
// whether a batch was active.
func (w *Workbench) CancelBatch() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelBatch == nil {
		return false
	}
	w.cancelBatch()
	return true
}

// BatchActive reports whether a batch is claimed or running for this session.
func (w *Workbench) BatchActive() bool {
	w.mu.Lock()
	claimed := w.cancelBatch != nil
	w.mu.Unlock()
	return claimed || w.runner.BatchActive()
}

// Running reports whether a test for entryID is in flight.
func (w *Workbench) Running(entryID string) bool {
	return w.runner.Running(entryID)
}

// Latest returns the most recent result per source.
func (w *Workbench) Latest() map[string]model.TestResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]model.TestResult, len(w.latest))
	for k, v := range w.latest {
		out[k] = v
	}
	return out
}

// History returns every result recorded for the session.
func (w *Workbench) History() []model.TestResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.TestResult, len(w.history))
	copy(out, w.history)
	return out
}

// Result looks up a result by id.
func (w *Workbench) Result(resultID string) (model.TestResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.history) - 1; i >= 0; i-- {
		if w.history[i].ID == resultID {
			return w.history[i], true
		}
	}
	return model.TestResult{}, false
}

// CurrentSpace returns the research space promotions go to by default.
func (w *Workbench) CurrentSpace() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentSpace
}

// SetCurrentSpace establishes the research space for later promotions.
func (w *Workbench) SetCurrentSpace(ctx context.Context, spaceID string) error {
	if err := w.sessions.SetCurrentSpace(ctx, w.sessionID, spaceID); err != nil {
		return eris.Wrap(err, "discovery: set current space")
	}
	w.mu.Lock()
	w.currentSpace = spaceID
	w.mu.Unlock()
	return nil
}

// Promote attaches the source behind resultID to a research space and
// returns the space used. selectedSpace is only consulted when the session
// has no current space.
func (w *Workbench) Promote(ctx context.Context, resultID, selectedSpace string) (string, error) {
	res, ok := w.Result(resultID)
	if !ok {
		return "", eris.Wrapf(ErrUnknownResult, "promote %s", resultID)
	}
	spaceID, err := TargetSpace(w.CurrentSpace(), selectedSpace)
	if err != nil {
		return "", err
	}
	if err := w.gateway.Promote(ctx, res, spaceID); err != nil {
		return "", err
	}
	return spaceID, nil
}

// PromotionInFlight reports whether resultID is being promoted.
func (w *Workbench) PromotionInFlight(resultID string) bool {
	return w.gateway.InFlight(resultID)
}

func (w *Workbench) job(entryID string) (Job, error) {
	entry, ok := w.matrix.Entry(entryID)
	if !ok {
		return Job{}, eris.Wrapf(ErrUnknownEntry, "run %s", entryID)
	}
	return Job{
		Entry:    entry,
		Params:   w.Parameters(entryID),
		Settings: w.Settings(entryID),
	}, nil
}

// record persists res and recomputes the latest-per-source map from the
// full history.
func (w *Workbench) record(ctx context.Context, res model.TestResult) {
	if err := w.results.SaveResult(ctx, w.sessionID, res); err != nil {
		w.log.Error("save test result failed",
			zap.String("entry_id", res.CatalogEntryID),
			zap.String("result_id", res.ID),
			zap.Error(err),
		)
	}

	w.mu.Lock()
	w.history = append(w.history, res)
	w.latest = LatestPerSource(w.history)
	w.mu.Unlock()
}

// snapshotOverrides copies the override maps. Callers hold w.mu.
func (w *Workbench) snapshotOverrides() (map[string]model.QueryParameters, map[string]model.AdvancedSettings) {
	params := make(map[string]model.QueryParameters, len(w.params))
	for k, v := range w.params {
		params[k] = v
	}
	settings := make(map[string]model.AdvancedSettings, len(w.settings))
	for k, v := range w.settings {
		settings[k] = v
	}
	return params, settings
}
