package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	source_type   TEXT NOT NULL,
	param_type    TEXT NOT NULL,
	capabilities  TEXT NOT NULL DEFAULT '{}',
	requires_auth INTEGER NOT NULL DEFAULT 0,
	description   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS discovery_sessions (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	selected_source_ids TEXT NOT NULL DEFAULT '[]',
	parameters          TEXT NOT NULL DEFAULT '{}',
	advanced_settings   TEXT NOT NULL DEFAULT '{}',
	current_space_id    TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS discovery_test_results (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES discovery_sessions(id),
	catalog_entry_id TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	response_url     TEXT NOT NULL DEFAULT '',
	response_data    TEXT,
	error_message    TEXT NOT NULL DEFAULT '',
	quality_score    REAL
);

CREATE TABLE IF NOT EXISTS research_space_sources (
	id               TEXT PRIMARY KEY,
	space_id         TEXT NOT NULL,
	catalog_entry_id TEXT NOT NULL,
	test_result_id   TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_discovery_sessions_user ON discovery_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_discovery_results_session ON discovery_test_results(session_id);
CREATE INDEX IF NOT EXISTS idx_space_sources_space ON research_space_sources(space_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListCatalogEntries returns every catalog entry ordered by category and name.
func (s *SQLiteStore) ListCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, source_type, param_type, capabilities, requires_auth, description
		 FROM catalog_entries ORDER BY category, name, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog entries")
	}
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var (
			e                     model.CatalogEntry
			sourceType, paramType string
			capsJSON              string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &sourceType, &paramType,
			&capsJSON, &e.RequiresAuth, &e.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog entry")
		}
		e.SourceType = model.SourceType(sourceType)
		e.ParamType = model.ParamType(paramType)
		if err := json.Unmarshal([]byte(capsJSON), &e.Capabilities); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal capabilities for %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list catalog entries iterate")
}

// ImportCatalog upserts catalog entries keyed by id in one transaction.
func (s *SQLiteStore) ImportCatalog(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO catalog_entries (id, name, category, source_type, param_type, capabilities, requires_auth, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			source_type = excluded.source_type,
			param_type = excluded.param_type,
			capabilities = excluded.capabilities,
			requires_auth = excluded.requires_auth,
			description = excluded.description`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, e := range entries {
		caps, err := json.Marshal(e.Capabilities)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal capabilities for %s", e.ID)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.Category, string(e.SourceType),
			string(e.ParamType), string(caps), e.RequiresAuth, e.Description); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import %s", e.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

// ListSessions returns a user's discovery sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]model.DiscoverySession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, selected_source_ids, parameters, advanced_settings, current_space_id, created_at, updated_at
		 FROM discovery_sessions WHERE user_id = ? ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list sessions for %s", userID)
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
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, init model.SessionInit) (*model.DiscoverySession, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	selected := init.SelectedSourceIDs
	if selected == nil {
		selected = []string{}
	}
	params := init.Parameters
	if params == nil {
		params = map[string]model.QueryParameters{}
	}

	selectedJSON, err := json.Marshal(selected)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal selection")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal parameters")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discovery_sessions (id, user_id, selected_source_ids, parameters, advanced_settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '{}', ?, ?)`,
		id, init.UserID, string(selectedJSON), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert session for %s", init.UserID)
	}

	return &model.DiscoverySession{
		ID:                id,
		UserID:            init.UserID,
		SelectedSourceIDs: selected,
		Parameters:        params,
		Settings:          map[string]model.AdvancedSettings{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// UpdateSelection replaces a session's selected sources.
func (s *SQLiteStore) UpdateSelection(ctx context.Context, sessionID string, sourceIDs []string) error {
	if sourceIDs == nil {
		sourceIDs = []string{}
	}
	selectedJSON, err := json.Marshal(sourceIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal selection")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_sessions SET selected_source_ids = ?, updated_at = ? WHERE id = ?`,
		string(selectedJSON), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update selection %s", sessionID)
	}
	return checkRowsAffected(res, sessionID)
}

// SaveOverrides replaces a session's parameter and settings overrides.
func (s *SQLiteStore) SaveOverrides(ctx context.Context, sessionID string, params map[string]model.QueryParameters, settings map[string]model.AdvancedSettings) error {
	if params == nil {
		params = map[string]model.QueryParameters{}
	}
	if settings == nil {
		settings = map[string]model.AdvancedSettings{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal parameters")
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal settings")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_sessions SET parameters = ?, advanced_settings = ?, updated_at = ? WHERE id = ?`,
		string(paramsJSON), string(settingsJSON), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save overrides %s", sessionID)
	}
	return checkRowsAffected(res, sessionID)
}

// SetCurrentSpace records the session's research space.
func (s *SQLiteStore) SetCurrentSpace(ctx context.Context, sessionID, spaceID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_sessions SET current_space_id = ?, updated_at = ? WHERE id = ?`,
		spaceID, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set current space %s", sessionID)
	}
	return checkRowsAffected(res, sessionID)
}

// ListResults returns a session's result history in start order.
func (s *SQLiteStore) ListResults(ctx context.Context, sessionID string) ([]model.TestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, catalog_entry_id, status, started_at, completed_at, response_url, response_data, error_message, quality_score
		 FROM discovery_test_results WHERE session_id = ? ORDER BY started_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list results %s", sessionID)
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var (
			r         model.TestResult
			status    string
			completed sql.NullTime
			data      sql.NullString
			score     sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.CatalogEntryID, &status, &r.StartedAt, &completed,
			&r.ResponseURL, &data, &r.ErrorMessage, &score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		r.Status = model.TestStatus(status)
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		if data.Valid && data.String != "" {
			r.ResponseData = json.RawMessage(data.String)
		}
		if score.Valid {
			v := score.Float64
			r.QualityScore = &v
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

// SaveResult inserts a result. Re-saving the same id is a no-op.
func (s *SQLiteStore) SaveResult(ctx context.Context, sessionID string, r model.TestResult) error {
	var data sql.NullString
	if len(r.ResponseData) > 0 {
		data = sql.NullString{String: string(r.ResponseData), Valid: true}
	}
	var completed sql.NullTime
	if r.CompletedAt != nil {
		completed = sql.NullTime{Time: r.CompletedAt.UTC(), Valid: true}
	}
	var score sql.NullFloat64
	if r.QualityScore != nil {
		score = sql.NullFloat64{Float64: *r.QualityScore, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_test_results
		 (id, session_id, catalog_entry_id, status, started_at, completed_at, response_url, response_data, error_message, quality_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, sessionID, r.CatalogEntryID, string(r.Status), r.StartedAt.UTC(), completed,
		r.ResponseURL, data, r.ErrorMessage, score,
	)
	return eris.Wrapf(err, "sqlite: save result %s", r.ID)
}

// AttachSource records a permanent data source in a research space.
func (s *SQLiteStore) AttachSource(ctx context.Context, spaceID, entryID, resultID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_space_sources (id, space_id, catalog_entry_id, test_result_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), spaceID, entryID, resultID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: attach %s to space %s", entryID, spaceID)
}

// SpaceSources returns the catalog entry ids attached to a space, oldest first.
func (s *SQLiteStore) SpaceSources(ctx context.Context, spaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog_entry_id FROM research_space_sources WHERE space_id = ? ORDER BY created_at, id`,
		spaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list space sources %s", spaceID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan space source")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list space sources iterate")
}

// helpers

func checkRowsAffected(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(discovery.ErrNoSession, "session %s", sessionID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.DiscoverySession, error) {
	var (
		sess                                   model.DiscoverySession
		selectedJSON, paramsJSON, settingsJSON string
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &selectedJSON, &paramsJSON, &settingsJSON,
		&sess.CurrentSpaceID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	if err := json.Unmarshal([]byte(selectedJSON), &sess.SelectedSourceIDs); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal selection for %s", sess.ID)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &sess.Parameters); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal parameters for %s", sess.ID)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &sess.Settings); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal settings for %s", sess.ID)
	}
	return &sess, nil
}
