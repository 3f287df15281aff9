package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const memoryColumns = `id, user_id, key, value, memory_type, importance, tags, description,
	metadata, access_count, last_accessed, is_active, created_at, updated_at`

// memoryOrder ranks memories by importance, then recency.
const memoryOrder = ` ORDER BY importance DESC, updated_at DESC`

// StoreMemory inserts or updates the memory keyed by (UserID, Key). An
// existing memory is overwritten and reactivated; its access stats survive.
func (s *Store) StoreMemory(ctx context.Context, m Memory) (*Memory, error) {
	if m.UserID == "" || m.Key == "" {
		return nil, fmt.Errorf("store memory: user and key are required")
	}
	if m.Type == "" {
		m.Type = TypeFact
	}
	if !m.Type.Valid() {
		return nil, fmt.Errorf("store memory: invalid memory type %q", m.Type)
	}
	if m.Importance == 0 {
		m.Importance = DefaultImportance
	}
	m.Importance = ClampImportance(m.Importance)
	if m.Tags == nil {
		m.Tags = []string{}
	}

	tags, err := marshalJSON(m.Tags, "[]")
	if err != nil {
		return nil, err
	}
	meta, err := marshalJSON(m.Metadata, "{}")
	if err != nil {
		return nil, err
	}

	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, key, value, memory_type, importance, tags, description, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = excluded.value,
			memory_type = excluded.memory_type,
			importance = excluded.importance,
			tags = excluded.tags,
			description = excluded.description,
			metadata = excluded.metadata,
			is_active = 1,
			updated_at = excluded.updated_at`,
		uuid.New().String(), m.UserID, m.Key, m.Value, string(m.Type), m.Importance, tags, m.Description, meta, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert memory: %w", err)
	}

	return s.lookupMemory(ctx, m.UserID, m.Key, false)
}

// GetMemory returns an active memory and records the access.
func (s *Store) GetMemory(ctx context.Context, userID, key string) (*Memory, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?
		WHERE user_id = ? AND key = ? AND is_active = 1`, s.now().UnixNano(), userID, key)
	if err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.lookupMemory(ctx, userID, key, true)
}

// PeekMemory returns an active memory without recording an access.
func (s *Store) PeekMemory(ctx context.Context, userID, key string) (*Memory, error) {
	return s.lookupMemory(ctx, userID, key, true)
}

func (s *Store) lookupMemory(ctx context.Context, userID, key string, activeOnly bool) (*Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? AND key = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	m, err := scanMemory(s.db.QueryRowContext(ctx, query, userID, key))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// MemoryQuery filters SearchMemories.
type MemoryQuery struct {
	Text  string   // matched case-insensitively against key, value and description
	Type  Type     // optional
	Tags  []string // all must be present
	Limit int      // default 10
}

// SearchMemories returns active memories matching q.
func (s *Store) SearchMemories(ctx context.Context, userID string, q MemoryQuery) ([]Memory, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? AND is_active = 1`
	args := []any{userID}
	if q.Type != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(q.Type))
	}
	if q.Text != "" {
		query += ` AND (instr(lower(key), lower(?)) > 0 OR instr(lower(value), lower(?)) > 0 OR instr(lower(description), lower(?)) > 0)`
		args = append(args, q.Text, q.Text, q.Text)
	}
	query += memoryOrder

	all, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]Memory, 0, len(all))
	for _, m := range all {
		if !m.HasTags(q.Tags) {
			continue
		}
		out = append(out, m)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// ListMemories returns the user's active memories, optionally filtered by
// type and minimum importance.
func (s *Store) ListMemories(ctx context.Context, userID string, typ Type, minImportance int) ([]Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? AND is_active = 1 AND importance >= ?`
	args := []any{userID, minImportance}
	if typ != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(typ))
	}
	return s.queryMemories(ctx, query+memoryOrder, args...)
}

// MemoryKeys returns the keys of all the user's active memories.
func (s *Store) MemoryKeys(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM memories WHERE user_id = ? AND is_active = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteMemory deactivates a memory. The row is kept.
func (s *Store) DeleteMemory(ctx context.Context, userID, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET is_active = 0, updated_at = ? WHERE user_id = ? AND key = ? AND is_active = 1`,
		s.now().UnixNano(), userID, key)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImportance sets a memory's importance, clamped to 1..10.
func (s *Store) UpdateImportance(ctx context.Context, userID, key string, importance int) (*Memory, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET importance = ?, updated_at = ? WHERE user_id = ? AND key = ? AND is_active = 1`,
		ClampImportance(importance), s.now().UnixNano(), userID, key)
	if err != nil {
		return nil, fmt.Errorf("update importance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.lookupMemory(ctx, userID, key, true)
}

// Stats summarises the user's memories, sessions and messages.
func (s *Store) Stats(ctx context.Context, userID string) (*Stats, error) {
	st := &Stats{ByType: make(map[Type]int, len(Types)), MostAccessed: []AccessedMemory{}}
	for _, t := range Types {
		st.ByType[t] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*) FROM memories
		WHERE user_id = ? AND is_active = 1 GROUP BY memory_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.ByType[Type(t)] = n
		st.TotalMemories += n
	}
	rows.Close()

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&st.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m JOIN sessions s ON s.id = m.session_ref
		WHERE s.user_id = ?`, userID).Scan(&st.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	top, err := s.db.QueryContext(ctx, `
		SELECT key, value, access_count FROM memories
		WHERE user_id = ? AND is_active = 1
		ORDER BY access_count DESC, updated_at DESC LIMIT 5`, userID)
	if err != nil {
		return nil, fmt.Errorf("most accessed: %w", err)
	}
	defer top.Close()
	for top.Next() {
		var a AccessedMemory
		if err := top.Scan(&a.Key, &a.Value, &a.AccessCount); err != nil {
			return nil, err
		}
		st.MostAccessed = append(st.MostAccessed, a)
	}
	return st, top.Err()
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	out := []Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMemory(row scanner) (*Memory, error) {
	var (
		m                Memory
		typ, tags, meta  string
		lastAccessed     sql.NullInt64
		active           int
		created, updated int64
	)
	err := row.Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &typ, &m.Importance, &tags, &m.Description,
		&meta, &m.AccessCount, &lastAccessed, &active, &created, &updated)
	if err != nil {
		return nil, err
	}
	m.Type = Type(typ)
	m.Active = active == 1
	m.CreatedAt = time.Unix(0, created)
	m.UpdatedAt = time.Unix(0, updated)
	if lastAccessed.Valid {
		t := time.Unix(0, lastAccessed.Int64)
		m.LastAccessed = &t
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil || m.Tags == nil {
		m.Tags = []string{}
	}
	_ = json.Unmarshal([]byte(meta), &m.Metadata)
	return &m, nil
}

// normalizeKey trims surrounding whitespace from a user supplied key.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
