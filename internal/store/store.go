// Package store persists chat sessions and their message logs in
// SQLite. The orchestrator writes fire-and-forget; readers (session
// browser, CLI) see an append-only log ordered by timestamp.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists sessions and messages. The *sql.DB is injected so
// production can link the cgo driver while tests run the pure-Go one
// against :memory:.
type Store struct {
	db *sql.DB
}

// Session is one persisted conversation thread.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one persisted chat message.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	IsUser     bool      `json:"is_user"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewStore creates a session store, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		is_user      BOOLEAN NOT NULL DEFAULT FALSE,
		tool_call_id TEXT,
		timestamp    TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession inserts a new session and returns its id.
func (s *Store) CreateSession(title string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)`,
		id, title, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// InsertMessage appends a message to a session's log and returns the
// assigned message id.
func (s *Store) InsertMessage(sessionID, role, content string, isUser bool, toolCallID string, ts time.Time) (string, error) {
	id := uuid.NewString()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, session_id, role, content, is_user, tool_call_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, role, content, isUser, toolCallID, ts,
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// MessagesForSession returns a session's messages ordered by timestamp
// ascending (insertion order for same-timestamp rows).
func (s *Store) MessagesForSession(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, is_user, COALESCE(tool_call_id, ''), timestamp
		 FROM messages WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.IsUser, &m.ToolCallID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AllSessions returns every session, newest first, with message counts.
func (s *Store) AllSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.title, s.created_at, COUNT(m.id)
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id, s.title, s.created_at
		 ORDER BY s.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session with its message count, or sql.ErrNoRows.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(
		`SELECT s.id, s.title, s.created_at, COUNT(m.id)
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.id
		 WHERE s.id = ?
		 GROUP BY s.id, s.title, s.created_at`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.MessageCount)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session and its messages atomically.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session row: %w", err)
	}
	return tx.Commit()
}

// UpdateSessionTitle sets a session's title.
func (s *Store) UpdateSessionTitle(id, title string) error {
	_, err := s.db.Exec(`UPDATE sessions SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return nil
}
