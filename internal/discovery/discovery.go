// Package discovery is the data-discovery engine behind the console's
// workbench: it resolves the active session, decides which catalog entries
// can be tested, runs tests one source at a time, reconciles results, and
// promotes successful sources into research spaces.
package discovery

import (
	"context"

	"github.com/sells-group/discovery-console/internal/model"
)

// CatalogProvider lists the external data sources known to the platform.
type CatalogProvider interface {
	ListCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error)
}

// SessionStore persists discovery sessions.
type SessionStore interface {
	ListSessions(ctx context.Context, userID string) ([]model.DiscoverySession, error)
	CreateSession(ctx context.Context, init model.SessionInit) (*model.DiscoverySession, error)
	UpdateSelection(ctx context.Context, sessionID string, sourceIDs []string) error
	SaveOverrides(ctx context.Context, sessionID string, params map[string]model.QueryParameters, settings map[string]model.AdvancedSettings) error
	SetCurrentSpace(ctx context.Context, sessionID, spaceID string) error
}

// ResultStore records test results for a session.
type ResultStore interface {
	ListResults(ctx context.Context, sessionID string) ([]model.TestResult, error)
	SaveResult(ctx context.Context, sessionID string, result model.TestResult) error
}

// Executor runs one test query against one external source. Implementations
// return an error for transport failures; the runner turns those into
// error or timeout results.
type Executor interface {
	RunTest(ctx context.Context, entryID string, params model.QueryParameters, settings model.AdvancedSettings) (*model.TestResult, error)
}

// SpaceAttacher creates the permanent data source record in a research space.
type SpaceAttacher interface {
	AttachSource(ctx context.Context, spaceID, entryID, resultID string) error
}

// CredentialSet reports which catalog entries have a credential configured.
// Validity of the credential itself is the executor's concern.
type CredentialSet map[string]bool

// Has reports whether a credential is present for entryID.
func (c CredentialSet) Has(entryID string) bool {
	return c[entryID]
}

// CredentialsFromTokens builds a CredentialSet from entry-id → token pairs,
// ignoring blank tokens.
func CredentialsFromTokens(tokens map[string]string) CredentialSet {
	set := make(CredentialSet, len(tokens))
	for id, tok := range tokens {
		if tok != "" {
			set[id] = true
		}
	}
	return set
}
