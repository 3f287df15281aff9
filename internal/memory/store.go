package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    level TEXT NOT NULL DEFAULT 'super',
    total_messages INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    last_active INTEGER NOT NULL,
    UNIQUE (user_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON sessions(user_id, is_active, last_active);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_ref TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_ref, timestamp);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    memory_type TEXT NOT NULL DEFAULT 'fact',
    importance INTEGER NOT NULL DEFAULT 5,
    tags TEXT NOT NULL DEFAULT '[]',
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (user_id, key)
);
CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type, is_active);
CREATE INDEX IF NOT EXISTS idx_memories_rank ON memories(user_id, importance DESC, updated_at DESC);

CREATE TABLE IF NOT EXISTS knowledge (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL DEFAULT 'general',
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    source TEXT NOT NULL DEFAULT '',
    relevance_score REAL NOT NULL DEFAULT 1.0,
    access_count INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_category ON knowledge(category);

CREATE TABLE IF NOT EXISTS preferences (
    user_id TEXT PRIMARY KEY,
    default_level TEXT NOT NULL DEFAULT 'super',
    response_style TEXT NOT NULL DEFAULT 'detailed',
    system_info_settings TEXT NOT NULL DEFAULT '{}',
    notification_settings TEXT NOT NULL DEFAULT '{}',
    ui_settings TEXT NOT NULL DEFAULT '{}',
    privacy_settings TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store persists sessions, messages, memories, knowledge and preferences in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Sessions

// GetOrCreateSession returns the session, creating it with level when absent.
// An existing session is reactivated and touched.
func (s *Store) GetOrCreateSession(ctx context.Context, userID, sessionID, level string) (*Session, error) {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, session_id, level, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id) DO UPDATE SET is_active = 1, last_active = excluded.last_active`,
		uuid.New().String(), userID, sessionID, level, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return s.getSession(ctx, userID, sessionID)
}

func (s *Store) getSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, level, total_messages, is_active, created_at, last_active
		FROM sessions WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// SetSessionLevel records the intelligence level of a session.
func (s *Store) SetSessionLevel(ctx context.Context, userID, sessionID, level string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET level = ? WHERE user_id = ? AND session_id = ?`,
		level, userID, sessionID)
	return err
}

// CloseSession marks a session inactive.
func (s *Store) CloseSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE user_id = ? AND session_id = ?`,
		userID, sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// ActiveSessions returns the user's active sessions, most recent first.
func (s *Store) ActiveSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, level, total_messages, is_active, created_at, last_active
		FROM sessions WHERE user_id = ? AND is_active = 1
		ORDER BY last_active DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// DeactivateIdleSessions closes active sessions idle for longer than olderThan.
func (s *Store) DeactivateIdleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE is_active = 1 AND last_active < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return res.RowsAffected()
}

// CleanupSessions deletes inactive sessions (and their messages) whose last
// activity is older than olderThan. An empty userID applies to all users.
func (s *Store) CleanupSessions(ctx context.Context, userID string, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()
	query := `DELETE FROM sessions WHERE is_active = 0 AND last_active < ?`
	args := []any{cutoff}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

// Messages

// AddMessage appends a message to the session, creating the session if needed.
func (s *Store) AddMessage(ctx context.Context, userID, sessionID, role, content string, metadata map[string]any) (*Message, error) {
	sess, err := s.GetOrCreateSession(ctx, userID, sessionID, "super")
	if err != nil {
		return nil, err
	}

	meta, err := marshalJSON(metadata, "{}")
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &Message{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Timestamp: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_ref, role, content, metadata, timestamp)
		SELECT ?, id, ?, ?, ?, ? FROM sessions WHERE user_id = ? AND session_id = ?`,
		msg.ID, role, content, meta, now.UnixNano(), userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET total_messages = total_messages + 1, last_active = ?
		WHERE user_id = ? AND session_id = ?`, now.UnixNano(), userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the newest limit messages of a session, oldest first.
func (s *Store) History(ctx context.Context, userID, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT m.id, s.session_id, m.role, m.content, m.metadata, m.timestamp, m.rowid AS seq
			FROM messages m JOIN sessions s ON s.id = m.session_ref
			WHERE s.user_id = ? AND s.session_id = ?
			ORDER BY m.timestamp DESC, m.rowid DESC LIMIT ?
		) ORDER BY timestamp ASC, seq ASC`, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m    Message
			meta string
			ts   int64
			seq  int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &meta, &ts, &seq); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts)
		_ = json.Unmarshal([]byte(meta), &m.Metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearHistory deletes every message of a session.
func (s *Store) ClearHistory(ctx context.Context, userID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_ref IN (
			SELECT id FROM sessions WHERE user_id = ? AND session_id = ?)`, userID, sessionID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET total_messages = 0 WHERE user_id = ? AND session_id = ?`,
		userID, sessionID)
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess              Session
		active            int
		created, lastSeen int64
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Level, &sess.TotalMessages, &active, &created, &lastSeen); err != nil {
		return nil, err
	}
	sess.Active = active == 1
	sess.CreatedAt = time.Unix(0, created)
	sess.LastActive = time.Unix(0, lastSeen)
	return &sess, nil
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// containsFold reports whether substr is within s, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
