// Package sqlite persists finished chat exchanges. Citations are stored per
// transcript and retrievable by citation id, mirroring the backend's citation
// cache that powers source-preview lookups.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jlx1999s/RAGAgent/internal/session"
	"github.com/jlx1999s/RAGAgent/internal/stream"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is a SQLite-backed transcript store.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			phase TEXT NOT NULL,
			error_message TEXT,
			used_retrieval INTEGER NOT NULL DEFAULT 0,
			safety_checked INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS citations (
			citation_id TEXT NOT NULL,
			transcript_id TEXT NOT NULL,
			display_index INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (transcript_id, citation_id),
			FOREIGN KEY (transcript_id) REFERENCES transcripts(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_id ON citations(citation_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Transcript is one stored exchange.
type Transcript struct {
	ID            string
	SessionID     string
	Mode          string
	Question      string
	Answer        string
	Phase         string
	ErrMessage    string
	UsedRetrieval bool
	SafetyChecked bool
	Metadata      map[string]any
	Citations     []session.DisplayCitation
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SaveResult stores a finalized session result and returns the transcript id.
func (s *Store) SaveResult(ctx context.Context, res *session.Result) (string, error) {
	if !res.Phase.Terminal() {
		return "", fmt.Errorf("refusing to store a non-terminal session (phase %s)", res.Phase)
	}

	var metadata []byte
	if res.Metadata != nil {
		var err error
		metadata, err = json.Marshal(res.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transcripts (id, session_id, mode, question, answer, phase, error_message,
			used_retrieval, safety_checked, metadata, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.SessionID, res.Mode, res.Question, res.Answer, res.Phase.String(), res.ErrMessage,
		res.UsedRetrieval, res.SafetyChecked, nullableString(metadata), res.StartedAt, res.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert transcript: %w", err)
	}

	for _, c := range res.Citations {
		payload, err := json.Marshal(c.Citation)
		if err != nil {
			return "", fmt.Errorf("failed to marshal citation %s: %w", c.CitationID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO citations (citation_id, transcript_id, display_index, payload) VALUES (?, ?, ?, ?)`,
			c.CitationID, id, c.DisplayIndex, string(payload))
		if err != nil {
			return "", fmt.Errorf("failed to insert citation %s: %w", c.CitationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// BySession returns all transcripts for a session, oldest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]*Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, mode, question, answer, phase, error_message,
			used_retrieval, safety_checked, metadata, started_at, finished_at
		 FROM transcripts WHERE session_id = ? ORDER BY started_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var out []*Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadCitations(ctx, t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CitationByID returns the stored citation with the given id. When the same
// id appears in several transcripts the most recent one wins.
func (s *Store) CitationByID(ctx context.Context, citationID string) (*stream.Citation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT c.payload FROM citations c
		 JOIN transcripts t ON t.id = c.transcript_id
		 WHERE c.citation_id = ? ORDER BY t.finished_at DESC LIMIT 1`, citationID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query citation: %w", err)
	}

	var c stream.Citation
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citation payload: %w", err)
	}
	return &c, nil
}

func (s *Store) loadCitations(ctx context.Context, t *Transcript) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT citation_id, display_index, payload FROM citations
		 WHERE transcript_id = ? ORDER BY display_index`, t.ID)
	if err != nil {
		return fmt.Errorf("failed to query citations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      string
			index   int
			payload string
		)
		if err := rows.Scan(&id, &index, &payload); err != nil {
			return fmt.Errorf("failed to scan citation: %w", err)
		}
		var c stream.Citation
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return fmt.Errorf("failed to unmarshal citation payload: %w", err)
		}
		t.Citations = append(t.Citations, session.DisplayCitation{Citation: c, DisplayIndex: index})
	}
	return rows.Err()
}

func scanTranscript(rows *sql.Rows) (*Transcript, error) {
	var (
		t        Transcript
		errMsg   sql.NullString
		metadata sql.NullString
	)
	if err := rows.Scan(&t.ID, &t.SessionID, &t.Mode, &t.Question, &t.Answer, &t.Phase,
		&errMsg, &t.UsedRetrieval, &t.SafetyChecked, &metadata, &t.StartedAt, &t.FinishedAt); err != nil {
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}
	t.ErrMessage = errMsg.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &t, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
