// Package archive provides durable history of agent conversations.
// The in-memory session store expires by TTL; the archive keeps every
// completed turn in SQLite so users can list past sessions after the
// live state is gone. Records are append-only.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	ID               string
	SessionID        string
	UserID           string
	TraceID          string
	UserMessage      string
	AssistantMessage string
	Success          bool
	City             string
	TraceCount       int
	DurationMs       int64
	CreatedAt        time.Time
}

// SessionInfo summarizes one archived session for listings.
type SessionInfo struct {
	ID        string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	TurnCount int       `json:"turnCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats holds archive-wide totals.
type Stats struct {
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
	Turns    int `json:"turns"`
}

// Store is an append-only SQLite archive. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens the archive at the given database path. The schema is
// created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS turns (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL,
		trace_id          TEXT,
		user_message      TEXT NOT NULL,
		assistant_message TEXT,
		success           INTEGER NOT NULL,
		city              TEXT,
		trace_count       INTEGER NOT NULL DEFAULT 0,
		duration_ms       INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordTurn persists one exchange, creating the user and session rows
// as needed and bumping the session's updated_at.
func (s *Store) RecordTurn(ctx context.Context, turn Turn) error {
	if turn.SessionID == "" {
		return fmt.Errorf("record turn: session id required")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	ts := turn.CreatedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	defer tx.Rollback()

	if turn.UserID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, created_at) VALUES (?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			turn.UserID, ts,
		); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		turn.SessionID, nullable(turn.UserID), ts, ts,
	); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns
			(id, session_id, trace_id, user_message, assistant_message, success, city, trace_count, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.TraceID,
		turn.UserMessage, turn.AssistantMessage,
		boolToInt(turn.Success), turn.City,
		turn.TraceCount, turn.DurationMs, ts,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// RecentSessions lists a user's archived sessions, most recent first.
// A blank userID lists across all users.
func (s *Store) RecentSessions(ctx context.Context, userID string, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT cs.id, COALESCE(cs.user_id, ''), cs.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = cs.id)
		FROM chat_sessions cs`
	args := []any{}
	if userID != "" {
		query += ` WHERE cs.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY cs.updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updated string
		if err := rows.Scan(&info.ID, &info.UserID, &updated, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// Turns returns a session's exchanges in chronological order.
func (s *Store) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, trace_id, user_message, assistant_message, success, city, trace_count, duration_ms, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var success int
		var created string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.TraceID,
			&t.UserMessage, &t.AssistantMessage, &success, &t.City,
			&t.TraceCount, &t.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Success = success != 0
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Stats returns archive-wide row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM turns)`)
	if err := row.Scan(&st.Users, &st.Sessions, &st.Turns); err != nil {
		return Stats{}, fmt.Errorf("archive stats: %w", err)
	}
	return st, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
