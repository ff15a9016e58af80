package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/resilience"
)

type executorFunc func(ctx context.Context, entryID string, params model.QueryParameters, settings model.AdvancedSettings) (*model.TestResult, error)

func (f executorFunc) RunTest(ctx context.Context, entryID string, params model.QueryParameters, settings model.AdvancedSettings) (*model.TestResult, error) {
	return f(ctx, entryID, params, settings)
}

func geneJob(id string) Job {
	return Job{
		Entry:  model.CatalogEntry{ID: id, ParamType: model.ParamTypeGene},
		Params: model.QueryParameters{GeneSymbol: "MED13L"},
	}
}

func collect(results *[]model.TestResult) func(model.TestResult) {
	return func(r model.TestResult) { *results = append(*results, r) }
}

func TestRunner_RunAllKeepsOrderAndContinuesPastFailures(t *testing.T) {
	exec := newMockExecutor()
	exec.errs["A"] = errors.New("connection refused")
	exec.statuses["C"] = model.TestStatusError

	r := NewRunner(exec, nil, RunnerConfig{})
	var got []model.TestResult
	summary, err := r.RunAll(context.Background(), []Job{geneJob("A"), geneJob("B"), geneJob("C")}, collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, exec.Calls())
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].CatalogEntryID)
	assert.Equal(t, model.TestStatusError, got[0].Status)
	assert.Contains(t, got[0].ErrorMessage, "connection refused")
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, model.TestStatusSuccess, got[1].Status)
	assert.Equal(t, model.TestStatusError, got[2].Status)

	assert.Equal(t, BatchSummary{Attempted: 3, Succeeded: 1, Failed: 2}, summary)
	assert.False(t, r.BatchActive())
}

func TestRunner_RunAllSkipsExecutorForInvalidJobs(t *testing.T) {
	exec := newMockExecutor()
	r := NewRunner(exec, nil, RunnerConfig{})

	invalid := Job{Entry: model.CatalogEntry{ID: "B", ParamType: model.ParamTypeGeneAndTerm}, Params: model.QueryParameters{GeneSymbol: "MED13L"}}
	var got []model.TestResult
	summary, err := r.RunAll(context.Background(), []Job{geneJob("A"), invalid, geneJob("C")}, collect(&got))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, exec.Calls())
	require.Len(t, got, 3)
	assert.Equal(t, model.TestStatusValidationFailed, got[1].Status)
	assert.Contains(t, got[1].ErrorMessage, "search_term")
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunner_RunOneValidationFailure(t *testing.T) {
	exec := newMockExecutor()
	r := NewRunner(exec, nil, RunnerConfig{})

	job := Job{Entry: testEntry("uniprot-1"), Params: model.QueryParameters{GeneSymbol: "MED13L"}}
	res, err := r.RunOne(context.Background(), job)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, model.TestStatusValidationFailed, res.Status)
	assert.Equal(t, "uniprot-1", res.CatalogEntryID)
	assert.Empty(t, exec.Calls())
}

func TestRunner_RunOneSendsSanitizedParams(t *testing.T) {
	exec := newMockExecutor()
	r := NewRunner(exec, nil, RunnerConfig{})

	job := Job{
		Entry:  testEntry("uniprot-1"),
		Params: model.QueryParameters{GeneSymbol: " MED13L ", SearchTerm: "cardiac", VariationTypes: []string{"snv"}, MaxResults: 250},
	}
	res, err := r.RunOne(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusSuccess, res.Status)

	sent := exec.params["uniprot-1"]
	assert.Equal(t, "MED13L", sent.GeneSymbol)
	assert.Nil(t, sent.VariationTypes)
	assert.Equal(t, 100, sent.MaxResults)
}

func TestRunner_Timeout(t *testing.T) {
	exec := newMockExecutor()
	exec.hang["A"] = true
	r := NewRunner(exec, nil, RunnerConfig{Timeout: 20 * time.Millisecond})

	res, err := r.RunOne(context.Background(), geneJob("A"))
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusTimeout, res.Status)
	require.NotNil(t, res.CompletedAt)
}

func TestRunner_TransportErrorMapping(t *testing.T) {
	exec := newMockExecutor()
	exec.errs["gw"] = resilience.NewTransientError(errors.New("upstream gateway timeout"), 504)
	exec.errs["io"] = errors.New("read tcp 10.0.0.1:443: i/o timeout")
	exec.errs["boom"] = resilience.NewTransientError(errors.New("bad gateway"), 502)
	r := NewRunner(exec, nil, RunnerConfig{})

	for id, want := range map[string]model.TestStatus{
		"gw":   model.TestStatusTimeout,
		"io":   model.TestStatusTimeout,
		"boom": model.TestStatusError,
	} {
		res, err := r.RunOne(context.Background(), geneJob(id))
		require.NoError(t, err)
		assert.Equal(t, want, res.Status, id)
	}
}

func TestRunner_FillsMissingResultFields(t *testing.T) {
	calls := 0
	exec := executorFunc(func(_ context.Context, entryID string, _ model.QueryParameters, _ model.AdvancedSettings) (*model.TestResult, error) {
		calls++
		if calls == 1 {
			return nil, nil
		}
		return &model.TestResult{ResponseURL: "https://example.org/r/1"}, nil
	})
	r := NewRunner(exec, nil, RunnerConfig{})
	fixed := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return fixed }
	r.newID = func() string { return "generated" }

	res, err := r.RunOne(context.Background(), geneJob("A"))
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusError, res.Status)
	assert.Contains(t, res.ErrorMessage, "no result")

	res, err = r.RunOne(context.Background(), geneJob("A"))
	require.NoError(t, err)
	assert.Equal(t, "generated", res.ID)
	assert.Equal(t, "A", res.CatalogEntryID)
	assert.Equal(t, fixed, res.StartedAt)
	assert.Equal(t, model.TestStatusPending, res.Status)
	assert.Equal(t, "https://example.org/r/1", res.ResponseURL)
}

func TestRunner_CancelStopsBeforeNextSource(t *testing.T) {
	exec := newMockExecutor()
	exec.started = make(chan string, 10)
	exec.block["A"] = make(chan struct{})
	r := NewRunner(exec, nil, RunnerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		summary BatchSummary
		results []model.TestResult
	}
	done := make(chan outcome, 1)
	go func() {
		var got []model.TestResult
		s, _ := r.RunAll(ctx, []Job{geneJob("A"), geneJob("B"), geneJob("C")}, collect(&got))
		done <- outcome{s, got}
	}()

	assert.Equal(t, "A", <-exec.started)
	assert.True(t, r.BatchActive())
	assert.True(t, r.Running("A"))
	cancel()

	out := <-done
	assert.Equal(t, []string{"A"}, exec.Calls())
	require.Len(t, out.results, 3)
	for i, id := range []string{"A", "B", "C"} {
		assert.Equal(t, id, out.results[i].CatalogEntryID)
		assert.Equal(t, model.TestStatusCancelled, out.results[i].Status)
	}
	// A reached the executor before the cancel landed.
	assert.Equal(t, BatchSummary{Attempted: 1, Cancelled: 3}, out.summary)
	assert.False(t, r.Running("A"))
}

func TestRunner_SecondBatchConflicts(t *testing.T) {
	exec := newMockExecutor()
	exec.started = make(chan string, 10)
	release := make(chan struct{})
	exec.block["A"] = release
	r := NewRunner(exec, nil, RunnerConfig{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RunAll(context.Background(), []Job{geneJob("A")}, nil)
	}()
	<-exec.started

	_, err := r.RunAll(context.Background(), []Job{geneJob("B")}, nil)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "batch run", conflict.Op)

	// A single run is still allowed while the batch is active.
	res, err := r.RunOne(context.Background(), geneJob("B"))
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusSuccess, res.Status)

	close(release)
	<-done
	assert.False(t, r.BatchActive())
}

func TestRunner_EntryLock(t *testing.T) {
	exec := newMockExecutor()
	exec.started = make(chan string, 10)
	release := make(chan struct{})
	exec.block["A"] = release
	r := NewRunner(exec, nil, RunnerConfig{LockEntries: true})

	first := make(chan model.TestResult, 1)
	go func() {
		res, _ := r.RunOne(context.Background(), geneJob("A"))
		first <- res
	}()
	<-exec.started

	_, err := r.RunOne(context.Background(), geneJob("A"))
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "A", conflict.Key)

	// A batch covering the locked entry waits for it instead of failing.
	batchDone := make(chan []model.TestResult, 1)
	go func() {
		var got []model.TestResult
		_, _ = r.RunAll(context.Background(), []Job{geneJob("A"), geneJob("B")}, collect(&got))
		batchDone <- got
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"A"}, exec.Calls())

	close(release)
	assert.Equal(t, model.TestStatusSuccess, (<-first).Status)
	got := <-batchDone
	require.Len(t, got, 2)
	assert.Equal(t, model.TestStatusSuccess, got[0].Status)
	assert.Equal(t, []string{"A", "A", "B"}, exec.Calls())
}
