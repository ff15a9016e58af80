package discovery

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/discovery-console/internal/db"
	"github.com/sells-group/discovery-console/internal/model"
)

// PostgresStore implements every collaborator interface against Postgres
// using pgx.
type PostgresStore struct {
	pool db.Pool
}

var (
	_ CatalogProvider = (*PostgresStore)(nil)
	_ SessionStore    = (*PostgresStore)(nil)
	_ ResultStore     = (*PostgresStore)(nil)
	_ SpaceAttacher   = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	source_type   TEXT NOT NULL,
	param_type    TEXT NOT NULL,
	capabilities  JSONB NOT NULL DEFAULT '{}',
	requires_auth BOOLEAN NOT NULL DEFAULT false,
	description   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS discovery_sessions (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id             TEXT NOT NULL,
	selected_source_ids TEXT[] NOT NULL DEFAULT '{}',
	parameters          JSONB NOT NULL DEFAULT '{}',
	advanced_settings   JSONB NOT NULL DEFAULT '{}',
	current_space_id    TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discovery_test_results (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES discovery_sessions(id),
	catalog_entry_id TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	response_url     TEXT NOT NULL DEFAULT '',
	response_data    JSONB,
	error_message    TEXT NOT NULL DEFAULT '',
	quality_score    DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS research_space_sources (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	space_id         TEXT NOT NULL,
	catalog_entry_id TEXT NOT NULL,
	test_result_id   TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_discovery_sessions_user ON discovery_sessions(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_discovery_results_session ON discovery_test_results(session_id, catalog_entry_id);
CREATE INDEX IF NOT EXISTS idx_space_sources_space ON research_space_sources(space_id);
`

// Migrate creates the discovery tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "discovery: migrate")
}

// ListCatalogEntries returns every catalog entry ordered by category and name.
func (s *PostgresStore) ListCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+catalogColumns+` FROM catalog_entries ORDER BY category, name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list catalog entries")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var (
			e                     model.CatalogEntry
			sourceType, paramType string
			caps                  []byte
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &sourceType, &paramType,
			&caps, &e.RequiresAuth, &e.Description); err != nil {
			return nil, eris.Wrap(err, "discovery: scan catalog entry")
		}
		e.SourceType = model.SourceType(sourceType)
		e.ParamType = model.ParamType(paramType)
		if len(caps) > 0 {
			if err := json.Unmarshal(caps, &e.Capabilities); err != nil {
				return nil, eris.Wrapf(err, "discovery: decode capabilities for %s", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ImportCatalog upserts catalog entries keyed by id.
func (s *PostgresStore) ImportCatalog(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		caps, err := json.Marshal(e.Capabilities)
		if err != nil {
			return 0, eris.Wrapf(err, "discovery: encode capabilities for %s", e.ID)
		}
		rows = append(rows, []any{
			e.ID, e.Name, e.Category, string(e.SourceType), string(e.ParamType),
			caps, e.RequiresAuth, e.Description,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "catalog_entries",
		Columns: []string{
			"id", "name", "category", "source_type", "param_type",
			"capabilities", "requires_auth", "description",
		},
		ConflictKeys: []string{"id"},
	}, rows)
}

// ListSessions returns a user's discovery sessions.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]model.DiscoverySession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM discovery_sessions WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: list sessions for %s", userID)
	}
	defer rows.Close()

	var sessions []model.DiscoverySession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// CreateSession inserts a new session.
func (s *PostgresStore) CreateSession(ctx context.Context, init model.SessionInit) (*model.DiscoverySession, error) {
	params, err := json.Marshal(nonNilParams(init.Parameters))
	if err != nil {
		return nil, eris.Wrap(err, "discovery: marshal session parameters")
	}
	selected := init.SelectedSourceIDs
	if selected == nil {
		selected = []string{}
	}

	sess := &model.DiscoverySession{
		UserID:            init.UserID,
		SelectedSourceIDs: selected,
		Parameters:        nonNilParams(init.Parameters),
		Settings:          map[string]model.AdvancedSettings{},
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO discovery_sessions (user_id, selected_source_ids, parameters)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		init.UserID, selected, params,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: create session for %s", init.UserID)
	}
	return sess, nil
}

// UpdateSelection replaces a session's selected sources.
func (s *PostgresStore) UpdateSelection(ctx context.Context, sessionID string, sourceIDs []string) error {
	if sourceIDs == nil {
		sourceIDs = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_sessions SET selected_source_ids = $2, updated_at = now() WHERE id = $1`,
		sessionID, sourceIDs,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: update selection %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNoSession, "update selection %s", sessionID)
	}
	return nil
}

// SaveOverrides replaces a session's parameter and settings overrides.
func (s *PostgresStore) SaveOverrides(ctx context.Context, sessionID string, params map[string]model.QueryParameters, settings map[string]model.AdvancedSettings) error {
	paramsJSON, err := json.Marshal(nonNilParams(params))
	if err != nil {
		return eris.Wrap(err, "discovery: marshal parameters")
	}
	if settings == nil {
		settings = map[string]model.AdvancedSettings{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal settings")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_sessions SET parameters = $2, advanced_settings = $3, updated_at = now() WHERE id = $1`,
		sessionID, paramsJSON, settingsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: save overrides %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNoSession, "save overrides %s", sessionID)
	}
	return nil
}

// SetCurrentSpace records the session's research space.
func (s *PostgresStore) SetCurrentSpace(ctx context.Context, sessionID, spaceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_sessions SET current_space_id = $2, updated_at = now() WHERE id = $1`,
		sessionID, spaceID,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: set current space %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNoSession, "set current space %s", sessionID)
	}
	return nil
}

// ListResults returns a session's result history in start order.
func (s *PostgresStore) ListResults(ctx context.Context, sessionID string) ([]model.TestResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM discovery_test_results WHERE session_id = $1 ORDER BY started_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: list results %s", sessionID)
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var (
			r      model.TestResult
			status string
			data   []byte
		)
		if err := rows.Scan(&r.ID, &r.CatalogEntryID, &status, &r.StartedAt, &r.CompletedAt,
			&r.ResponseURL, &data, &r.ErrorMessage, &r.QualityScore); err != nil {
			return nil, eris.Wrap(err, "discovery: scan result")
		}
		r.Status = model.TestStatus(status)
		if len(data) > 0 {
			r.ResponseData = json.RawMessage(data)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveResult inserts a result. Re-saving the same id is a no-op.
func (s *PostgresStore) SaveResult(ctx context.Context, sessionID string, r model.TestResult) error {
	var data []byte
	if len(r.ResponseData) > 0 {
		data = []byte(r.ResponseData)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discovery_test_results (`+resultColumns+`, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CatalogEntryID, string(r.Status), r.StartedAt, r.CompletedAt,
		r.ResponseURL, data, r.ErrorMessage, r.QualityScore, sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: save result %s", r.ID)
	}
	return nil
}

// AttachSource records a permanent data source in a research space. Each
// call creates a new attachment.
func (s *PostgresStore) AttachSource(ctx context.Context, spaceID, entryID, resultID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_space_sources (space_id, catalog_entry_id, test_result_id) VALUES ($1, $2, $3)`,
		spaceID, entryID, resultID,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: attach %s to space %s", entryID, spaceID)
	}
	return nil
}

const catalogColumns = `id, name, category, source_type, param_type, capabilities, requires_auth, description`

const sessionColumns = `id, user_id, selected_source_ids, parameters, advanced_settings,
	current_space_id, created_at, updated_at`

const resultColumns = `id, catalog_entry_id, status, started_at, completed_at,
	response_url, response_data, error_message, quality_score`

func scanSession(rows pgx.Rows) (*model.DiscoverySession, error) {
	var (
		sess     model.DiscoverySession
		params   []byte
		settings []byte
	)
	if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SelectedSourceIDs, &params, &settings,
		&sess.CurrentSpaceID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "discovery: scan session")
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &sess.Parameters); err != nil {
			return nil, eris.Wrapf(err, "discovery: decode parameters for session %s", sess.ID)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &sess.Settings); err != nil {
			return nil, eris.Wrapf(err, "discovery: decode settings for session %s", sess.ID)
		}
	}
	return &sess, nil
}

func nonNilParams(p map[string]model.QueryParameters) map[string]model.QueryParameters {
	if p == nil {
		return map[string]model.QueryParameters{}
	}
	return p
}
