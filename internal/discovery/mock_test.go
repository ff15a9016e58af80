package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/discovery-console/internal/model"
)

// mockExecutor implements Executor for testing.
type mockExecutor struct {
	mu       sync.Mutex
	calls    []string
	params   map[string]model.QueryParameters
	errs     map[string]error
	statuses map[string]model.TestStatus
	// block, when set for an entry, makes RunTest wait until the channel is
	// closed or the context ends.
	block map[string]chan struct{}
	// started receives the entry id when a call begins.
	started chan string
	// hang makes RunTest wait for the context to end.
	hang map[string]bool
	now  time.Time
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		params:   make(map[string]model.QueryParameters),
		errs:     make(map[string]error),
		statuses: make(map[string]model.TestStatus),
		block:    make(map[string]chan struct{}),
		hang:     make(map[string]bool),
		now:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *mockExecutor) RunTest(ctx context.Context, entryID string, params model.QueryParameters, _ model.AdvancedSettings) (*model.TestResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, entryID)
	m.params[entryID] = params
	n := len(m.calls)
	block := m.block[entryID]
	hang := m.hang[entryID]
	err := m.errs[entryID]
	status, ok := m.statuses[entryID]
	started := m.started
	m.mu.Unlock()

	if started != nil {
		started <- entryID
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		status = model.TestStatusSuccess
	}

	startedAt := m.now.Add(time.Duration(n) * time.Minute)
	completed := startedAt.Add(10 * time.Second)
	return &model.TestResult{
		ID:             fmt.Sprintf("res-%s-%d", entryID, n),
		CatalogEntryID: entryID,
		Status:         status,
		StartedAt:      startedAt,
		CompletedAt:    &completed,
	}, nil
}

func (m *mockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockCatalog implements CatalogProvider for testing.
type mockCatalog struct {
	entries []model.CatalogEntry
	err     error
}

func (m *mockCatalog) ListCatalogEntries(_ context.Context) ([]model.CatalogEntry, error) {
	return m.entries, m.err
}

// mockSessionStore implements SessionStore for testing.
type mockSessionStore struct {
	mu         sync.Mutex
	sessions   []model.DiscoverySession
	created    []model.SessionInit
	selections map[string][]string
	params     map[string]map[string]model.QueryParameters
	settings   map[string]map[string]model.AdvancedSettings
	spaces     map[string]string
	err        error
}

func newMockSessionStore(sessions ...model.DiscoverySession) *mockSessionStore {
	return &mockSessionStore{
		sessions:   sessions,
		selections: make(map[string][]string),
		params:     make(map[string]map[string]model.QueryParameters),
		settings:   make(map[string]map[string]model.AdvancedSettings),
		spaces:     make(map[string]string),
	}
}

func (m *mockSessionStore) ListSessions(_ context.Context, userID string) ([]model.DiscoverySession, error) {
	var out []model.DiscoverySession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, m.err
}

func (m *mockSessionStore) CreateSession(_ context.Context, init model.SessionInit) (*model.DiscoverySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, init)
	return &model.DiscoverySession{ID: fmt.Sprintf("new-%d", len(m.created)), UserID: init.UserID}, nil
}

func (m *mockSessionStore) UpdateSelection(_ context.Context, sessionID string, sourceIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[sessionID] = sourceIDs
	return m.err
}

func (m *mockSessionStore) SaveOverrides(_ context.Context, sessionID string, params map[string]model.QueryParameters, settings map[string]model.AdvancedSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[sessionID] = params
	m.settings[sessionID] = settings
	return m.err
}

func (m *mockSessionStore) SetCurrentSpace(_ context.Context, sessionID, spaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[sessionID] = spaceID
	return m.err
}

// mockResultStore implements ResultStore for testing.
type mockResultStore struct {
	mu      sync.Mutex
	results map[string][]model.TestResult
}

func newMockResultStore() *mockResultStore {
	return &mockResultStore{results: make(map[string][]model.TestResult)}
}

func (m *mockResultStore) ListResults(_ context.Context, sessionID string) ([]model.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TestResult(nil), m.results[sessionID]...), nil
}

func (m *mockResultStore) SaveResult(_ context.Context, sessionID string, r model.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sessionID] = append(m.results[sessionID], r)
	return nil
}

// mockAttacher implements SpaceAttacher for testing.
type mockAttacher struct {
	mu       sync.Mutex
	attached []string
	err      error
	release  chan struct{}
	entered  chan struct{}
}

func (m *mockAttacher) AttachSource(_ context.Context, spaceID, entryID, resultID string) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.attached = append(m.attached, spaceID+"/"+entryID+"/"+resultID)
	return nil
}

func testCatalog() []model.CatalogEntry {
	return []model.CatalogEntry{
		{
			ID: "uniprot-1", Name: "UniProt", Category: "proteins",
			SourceType: model.SourceTypeAPI, ParamType: model.ParamTypeGeneAndTerm,
			Capabilities: model.Capabilities{SupportsOrganism: true, SupportsReviewStatus: true, MaxResults: 100},
		},
		{
			ID: "clinvar", Name: "ClinVar", Category: "variants",
			SourceType: model.SourceTypeAPI, ParamType: model.ParamTypeGene,
			Capabilities: model.Capabilities{SupportsVariationType: true, SupportsClinicalSignificance: true, MaxResults: 500},
		},
		{
			ID: "pubmed", Name: "PubMed", Category: "literature",
			SourceType: model.SourceTypePubMed, ParamType: model.ParamTypeTerm,
			Capabilities: model.Capabilities{SupportsDateRange: true, SupportsPublicationTypes: true, SupportsLanguage: true},
		},
		{
			ID: "readme", Name: "Curation Handbook", Category: "reference",
			SourceType: model.SourceTypeFileUpload, ParamType: model.ParamTypeNone,
		},
		{
			ID: "omim", Name: "OMIM", Category: "genes",
			SourceType: model.SourceTypeAPI, ParamType: model.ParamTypeAPI, RequiresAuth: true,
		},
	}
}

func testEntry(id string) model.CatalogEntry {
	for _, e := range testCatalog() {
		if e.ID == id {
			return e
		}
	}
	panic("unknown test entry " + id)
}
