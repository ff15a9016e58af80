package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/resilience"
)

const defaultTestTimeout = 60 * time.Second

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// Timeout bounds each executor call; exceeding it records a timeout
	// result. Default: 60s.
	Timeout time.Duration

	// LockEntries serializes executions of the same entry across the single
	// and batch paths. A manual run of an entry that is executing returns a
	// ConflictError; a batch waits for the entry to free up.
	LockEntries bool
}

// Job is one test to run: the entry plus the parameter and settings
// snapshot current at trigger time.
type Job struct {
	Entry    model.CatalogEntry
	Params   model.QueryParameters
	Settings model.AdvancedSettings
}

// BatchSummary tallies the outcome of a batch. A batch is complete when every
// job has been attempted once, whatever the outcomes. Attempted counts every
// job that was validated or reached the executor, so a call cut off by
// cancellation is counted in both Attempted and Cancelled.
type BatchSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Runner executes tests for one session. Its batch flag and per-entry
// running flags are owned by that session and never shared across users.
type Runner struct {
	exec  Executor
	creds CredentialSet
	cfg   RunnerConfig

	nowFunc func() time.Time
	newID   func() string

	mu          sync.Mutex
	batchActive bool
	running     map[string]int
	locks       map[string]chan struct{}
}

// NewRunner creates a Runner bound to an executor and the session's credentials.
func NewRunner(exec Executor, creds CredentialSet, cfg RunnerConfig) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTestTimeout
	}
	return &Runner{
		exec:    exec,
		creds:   creds,
		cfg:     cfg,
		nowFunc: func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
		running: make(map[string]int),
		locks:   make(map[string]chan struct{}),
	}
}

// BatchActive reports whether a RunAll is in progress.
func (r *Runner) BatchActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchActive
}

// Running reports whether entryID currently has an executor call in flight.
func (r *Runner) Running(entryID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[entryID] > 0
}

// RunOne validates and executes a single test. Validation and configuration
// failures return a validation_failed result together with the typed error;
// no executor call is made. Transport failures come back as an error or
// timeout result with a nil error.
func (r *Runner) RunOne(ctx context.Context, job Job) (model.TestResult, error) {
	if err := Check(job.Entry, job.Params, r.creds); err != nil {
		return r.synthesize(job.Entry.ID, model.TestStatusValidationFailed, r.nowFunc(), err.Error()), err
	}

	if r.cfg.LockEntries {
		if !r.tryLock(job.Entry.ID) {
			return model.TestResult{}, &ConflictError{Op: "test run", Key: job.Entry.ID}
		}
		defer r.unlock(job.Entry.ID)
	}

	return r.execute(ctx, job), nil
}

// RunAll runs jobs strictly in order, each starting only after the previous
// one finished, and calls emit with every result as soon as it exists. A
// failing job never stops the batch. When ctx is cancelled, jobs that have not
// started are emitted as cancelled. RunAll returns a ConflictError if a batch
// is already active for this runner.
func (r *Runner) RunAll(ctx context.Context, jobs []Job, emit func(model.TestResult)) (BatchSummary, error) {
	r.mu.Lock()
	if r.batchActive {
		r.mu.Unlock()
		return BatchSummary{}, &ConflictError{Op: "batch run", Key: "session"}
	}
	r.batchActive = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.batchActive = false
		r.mu.Unlock()
	}()

	log := zap.L().With(zap.String("component", "runner"))
	log.Info("batch started", zap.Int("sources", len(jobs)))

	var summary BatchSummary
	for _, job := range jobs {
		var (
			res    model.TestResult
			called bool
		)
		if ctx.Err() != nil {
			res = r.synthesize(job.Entry.ID, model.TestStatusCancelled, r.nowFunc(), "batch cancelled before this source ran")
		} else {
			res, called = r.runBatchMember(ctx, job)
		}

		switch res.Status {
		case model.TestStatusSuccess:
			summary.Succeeded++
			summary.Attempted++
		case model.TestStatusCancelled:
			summary.Cancelled++
			if called {
				summary.Attempted++
			}
		default:
			summary.Failed++
			summary.Attempted++
			log.Warn("source test failed",
				zap.String("entry_id", job.Entry.ID),
				zap.String("status", string(res.Status)),
				zap.String("error", res.ErrorMessage),
			)
		}

		if emit != nil {
			emit(res)
		}
	}

	log.Info("batch finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("cancelled", summary.Cancelled),
	)
	return summary, nil
}

// runBatchMember runs one batch job and reports whether the executor was called.
func (r *Runner) runBatchMember(ctx context.Context, job Job) (model.TestResult, bool) {
	if err := Check(job.Entry, job.Params, r.creds); err != nil {
		return r.synthesize(job.Entry.ID, model.TestStatusValidationFailed, r.nowFunc(), err.Error()), false
	}

	if r.cfg.LockEntries {
		if err := r.lock(ctx, job.Entry.ID); err != nil {
			return r.synthesize(job.Entry.ID, model.TestStatusCancelled, r.nowFunc(), "batch cancelled while waiting for a manual run"), false
		}
		defer r.unlock(job.Entry.ID)
	}

	return r.execute(ctx, job), true
}

// execute performs one executor call under the per-call timeout and maps
// transport errors onto result statuses.
func (r *Runner) execute(ctx context.Context, job Job) model.TestResult {
	entryID := job.Entry.ID

	r.mu.Lock()
	r.running[entryID]++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running[entryID]--
		if r.running[entryID] <= 0 {
			delete(r.running, entryID)
		}
		r.mu.Unlock()
	}()

	started := r.nowFunc()
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	res, err := r.exec.RunTest(callCtx, entryID, Sanitize(job.Entry, job.Params), normalizeSettings(job.Settings))
	if err != nil {
		status := model.TestStatusError
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			status = model.TestStatusCancelled
		case errors.Is(callCtx.Err(), context.DeadlineExceeded), resilience.IsTimeout(err):
			status = model.TestStatusTimeout
		}
		zap.L().Debug("executor call failed",
			zap.String("entry_id", entryID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return r.synthesize(entryID, status, started, err.Error())
	}
	if res == nil {
		return r.synthesize(entryID, model.TestStatusError, started, eris.New("executor returned no result").Error())
	}

	out := *res
	if out.ID == "" {
		out.ID = r.newID()
	}
	if out.CatalogEntryID == "" {
		out.CatalogEntryID = entryID
	}
	if out.StartedAt.IsZero() {
		out.StartedAt = started
	}
	if out.Status == "" {
		out.Status = model.TestStatusPending
	}
	return out
}

// synthesize builds a locally produced terminal result.
func (r *Runner) synthesize(entryID string, status model.TestStatus, started time.Time, msg string) model.TestResult {
	completed := r.nowFunc()
	if completed.Before(started) {
		completed = started
	}
	return model.TestResult{
		ID:             r.newID(),
		CatalogEntryID: entryID,
		Status:         status,
		StartedAt:      started,
		CompletedAt:    &completed,
		ErrorMessage:   msg,
	}
}

func (r *Runner) entryLock(entryID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[entryID]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[entryID] = ch
	}
	return ch
}

func (r *Runner) tryLock(entryID string) bool {
	select {
	case r.entryLock(entryID) <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) lock(ctx context.Context, entryID string) error {
	select {
	case r.entryLock(entryID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) unlock(entryID string) {
	<-r.entryLock(entryID)
}
