package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/browsium/roundtable/backend/internal/model/review"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	owner_email TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_metadata TEXT,
	document_ref TEXT NOT NULL,
	persona_ids TEXT NOT NULL,
	workflow TEXT NOT NULL,
	workflow_config TEXT,
	display_provider TEXT NOT NULL DEFAULT '',
	display_model TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'uploaded',
	error_message TEXT NOT NULL DEFAULT '',
	share_with TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	persona_id TEXT NOT NULL,
	persona_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	verdict TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	UNIQUE(session_id, persona_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	group_id TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_session ON analyses(session_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_lookup ON artifacts(session_id, kind, group_id);
`

// SQLiteStore implements RecordStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// bootstraps the schema. WAL mode keeps concurrent readers cheap.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *review.Session) error {
	personaIDs, err := json.Marshal(sess.PersonaIDs)
	if err != nil {
		return err
	}
	shareWith, err := json.Marshal(sess.ShareWith)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_email, file_name, file_metadata, document_ref, persona_ids,
			workflow, workflow_config, display_provider, display_model, status, error_message,
			share_with, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerEmail, sess.FileName, nullableJSON(sess.FileMetadata), sess.DocumentRef,
		string(personaIDs), string(sess.Workflow), nullableJSON(sess.WorkflowConfig),
		sess.DisplayProvider, sess.DisplayModel, string(sess.Status), sess.ErrorMessage,
		string(shareWith), sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*review.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_email, file_name, file_metadata, document_ref, persona_ids, workflow,
			workflow_config, display_provider, display_model, status, error_message, share_with,
			created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, email string, includeShared bool) ([]*review.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_email, file_name, file_metadata, document_ref, persona_ids, workflow,
			workflow_config, display_provider, display_model, status, error_message, share_with,
			created_at, updated_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*review.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if sess.OwnerEmail == email || (includeShared && sess.SharedWith(email)) {
			out = append(out, sess)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *review.Session) error {
	personaIDs, err := json.Marshal(sess.PersonaIDs)
	if err != nil {
		return err
	}
	shareWith, err := json.Marshal(sess.ShareWith)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET owner_email = ?, file_name = ?, file_metadata = ?, document_ref = ?,
			persona_ids = ?, workflow = ?, workflow_config = ?, display_provider = ?,
			display_model = ?, status = ?, error_message = ?, share_with = ?, updated_at = ?
		WHERE id = ?`,
		sess.OwnerEmail, sess.FileName, nullableJSON(sess.FileMetadata), sess.DocumentRef,
		string(personaIDs), string(sess.Workflow), nullableJSON(sess.WorkflowConfig),
		sess.DisplayProvider, sess.DisplayModel, string(sess.Status), sess.ErrorMessage,
		string(shareWith), sess.UpdatedAt, sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateAnalysis(ctx context.Context, a *review.Analysis) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (session_id, persona_id, persona_name, status, provider, model,
			verdict, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.PersonaID, a.PersonaName, string(a.Status), a.Provider, a.Model,
		nullableJSON(a.Verdict), a.ErrorMessage, a.CreatedAt, a.CompletedAt)
	if err != nil {
		return err
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateAnalysis(ctx context.Context, a *review.Analysis) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET persona_name = ?, status = ?, provider = ?, model = ?, verdict = ?,
			error_message = ?, completed_at = ?
		WHERE session_id = ? AND persona_id = ?`,
		a.PersonaName, string(a.Status), a.Provider, a.Model, nullableJSON(a.Verdict),
		a.ErrorMessage, a.CompletedAt, a.SessionID, a.PersonaID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, sessionID, personaID string) (*review.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, persona_id, persona_name, status, provider, model, verdict,
			error_message, created_at, completed_at
		FROM analyses WHERE session_id = ? AND persona_id = ?`, sessionID, personaID)
	return scanAnalysis(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, sessionID string) ([]*review.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, persona_id, persona_name, status, provider, model, verdict,
			error_message, created_at, completed_at
		FROM analyses WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*review.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendArtifact(ctx context.Context, a *review.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (session_id, kind, group_id, provider, model, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, string(a.Kind), a.GroupID, a.Provider, a.Model, string(a.Payload), a.CreatedAt)
	if err != nil {
		return err
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) LatestArtifact(ctx context.Context, sessionID string, kind review.ArtifactKind, groupID string) (*review.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, kind, group_id, provider, model, payload, created_at
		FROM artifacts WHERE session_id = ? AND kind = ? AND group_id = ?
		ORDER BY id DESC LIMIT 1`, sessionID, string(kind), groupID)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, ErrArtifactNotFound
	}
	return a, err
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, sessionID string, kind review.ArtifactKind) ([]*review.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, group_id, provider, model, payload, created_at
		FROM artifacts WHERE session_id = ? AND kind = ? ORDER BY id`, sessionID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*review.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*review.Session, error) {
	var sess review.Session
	var metadata, personaIDs, workflowConfig, shareWith sql.NullString
	var status, workflow string

	err := row.Scan(&sess.ID, &sess.OwnerEmail, &sess.FileName, &metadata, &sess.DocumentRef,
		&personaIDs, &workflow, &workflowConfig, &sess.DisplayProvider, &sess.DisplayModel,
		&status, &sess.ErrorMessage, &shareWith, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.Status = review.SessionStatus(status)
	sess.Workflow = review.WorkflowKind(workflow)
	if metadata.Valid && metadata.String != "" {
		sess.FileMetadata = json.RawMessage(metadata.String)
	}
	if workflowConfig.Valid && workflowConfig.String != "" {
		sess.WorkflowConfig = json.RawMessage(workflowConfig.String)
	}
	if personaIDs.Valid && personaIDs.String != "" {
		if err := json.Unmarshal([]byte(personaIDs.String), &sess.PersonaIDs); err != nil {
			return nil, fmt.Errorf("decoding persona ids for session %s: %w", sess.ID, err)
		}
	}
	if shareWith.Valid && shareWith.String != "" {
		if err := json.Unmarshal([]byte(shareWith.String), &sess.ShareWith); err != nil {
			return nil, fmt.Errorf("decoding share list for session %s: %w", sess.ID, err)
		}
	}
	return &sess, nil
}

func scanAnalysis(row rowScanner) (*review.Analysis, error) {
	var a review.Analysis
	var verdict sql.NullString
	var status string
	var completedAt sql.NullTime

	err := row.Scan(&a.ID, &a.SessionID, &a.PersonaID, &a.PersonaName, &status, &a.Provider,
		&a.Model, &verdict, &a.ErrorMessage, &a.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Status = review.AnalysisStatus(status)
	if verdict.Valid && verdict.String != "" {
		a.Verdict = json.RawMessage(verdict.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func scanArtifact(row rowScanner) (*review.Artifact, error) {
	var a review.Artifact
	var kind string
	err := row.Scan(&a.ID, &a.SessionID, &kind, &a.GroupID, &a.Provider, &a.Model, &a.Payload, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Kind = review.ArtifactKind(kind)
	return &a, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
