package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Manager is the memory view of a single user. It writes through to the
// SQLite store and keeps the optional semantic index in step.
type Manager struct {
	store  *Store
	index  *Index
	userID string
}

// NewManager returns a Manager for userID. index may be nil.
func NewManager(store *Store, index *Index, userID string) *Manager {
	if userID == "" {
		userID = "anonymous"
	}
	return &Manager{store: store, index: index, userID: userID}
}

// UserID returns the user this manager serves.
func (m *Manager) UserID() string {
	return m.userID
}

// Store returns the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}

// StoreMemory persists mem for this user and indexes it.
func (m *Manager) StoreMemory(ctx context.Context, mem Memory) (*Memory, error) {
	mem.UserID = m.userID
	mem.Key = normalizeKey(mem.Key)
	saved, err := m.store.StoreMemory(ctx, mem)
	if err != nil {
		return nil, err
	}
	if m.index != nil {
		if err := m.index.Upsert(ctx, *saved); err != nil {
			log.Printf("memory: index %s: %v", saved.Key, err)
		}
	}
	return saved, nil
}

// GetMemory returns an active memory and records the access.
func (m *Manager) GetMemory(ctx context.Context, key string) (*Memory, error) {
	return m.store.GetMemory(ctx, m.userID, normalizeKey(key))
}

// Search returns memories matching q. Semantic hits come first, followed by
// substring matches, de-duplicated by key. If the index is unavailable or
// fails, only substring matching is used.
func (m *Manager) Search(ctx context.Context, q MemoryQuery) ([]Memory, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	var out []Memory
	seen := map[string]bool{}

	if m.index != nil && strings.TrimSpace(q.Text) != "" {
		hits, err := m.index.Search(ctx, m.userID, q.Text, q.Limit)
		if err != nil {
			log.Printf("memory: semantic search degraded to substring: %v", err)
		}
		for _, h := range hits {
			if len(out) == q.Limit {
				break
			}
			mem, err := m.store.PeekMemory(ctx, m.userID, h.Key)
			if err != nil {
				continue // deleted since indexing
			}
			if q.Type != "" && mem.Type != q.Type {
				continue
			}
			if !mem.HasTags(q.Tags) {
				continue
			}
			seen[mem.Key] = true
			out = append(out, *mem)
		}
	}

	if len(out) < q.Limit {
		rest, err := m.store.SearchMemories(ctx, m.userID, q)
		if err != nil {
			return nil, err
		}
		for _, mem := range rest {
			if len(out) == q.Limit {
				break
			}
			if seen[mem.Key] {
				continue
			}
			seen[mem.Key] = true
			out = append(out, mem)
		}
	}

	if out == nil {
		out = []Memory{}
	}
	return out, nil
}

// List returns active memories filtered by type and minimum importance.
func (m *Manager) List(ctx context.Context, typ Type, minImportance int) ([]Memory, error) {
	return m.store.ListMemories(ctx, m.userID, typ, minImportance)
}

// Delete soft-deletes a memory and removes it from the index.
func (m *Manager) Delete(ctx context.Context, key string) error {
	key = normalizeKey(key)
	mem, err := m.store.PeekMemory(ctx, m.userID, key)
	if err != nil {
		return err
	}
	if err := m.store.DeleteMemory(ctx, m.userID, key); err != nil {
		return err
	}
	if m.index != nil {
		if err := m.index.Remove(ctx, mem.ID); err != nil {
			log.Printf("memory: unindex %s: %v", key, err)
		}
	}
	return nil
}

// UpdateImportance sets the importance of a memory, clamped to 1..10.
func (m *Manager) UpdateImportance(ctx context.Context, key string, importance int) (*Memory, error) {
	return m.store.UpdateImportance(ctx, m.userID, normalizeKey(key), importance)
}

// Stats returns the user's memory statistics.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	return m.store.Stats(ctx, m.userID)
}

// Summary renders all active memories as text.
func (m *Manager) Summary(ctx context.Context) (string, error) {
	mems, err := m.List(ctx, "", 0)
	if err != nil {
		return "", err
	}
	return Summarize(mems), nil
}

// Preferences returns the user's preferences.
func (m *Manager) Preferences(ctx context.Context) (*Preferences, error) {
	return m.store.Preferences(ctx, m.userID)
}

// UpdatePreferences applies a partial update.
func (m *Manager) UpdatePreferences(ctx context.Context, patch PreferencesPatch) (*Preferences, error) {
	return m.store.UpdatePreferences(ctx, m.userID, patch)
}

// ExtractAndStore runs the extraction rules over a user message and stores
// every candidate that ShouldStore accepts. It returns what was stored.
func (m *Manager) ExtractAndStore(ctx context.Context, text string) ([]Memory, error) {
	candidates := Extract(text)
	if len(candidates) == 0 {
		return nil, nil
	}

	keys, err := m.store.MemoryKeys(ctx, m.userID)
	if err != nil {
		return nil, err
	}

	var stored []Memory
	for _, c := range candidates {
		ok, reason := ShouldStore(c, keys)
		if !ok {
			log.Printf("memory: skip %s: %s", c.Key, reason)
			continue
		}
		saved, err := m.StoreMemory(ctx, c)
		if err != nil {
			return stored, fmt.Errorf("store %s: %w", c.Key, err)
		}
		keys = append(keys, saved.Key)
		stored = append(stored, *saved)
	}
	return stored, nil
}

// ContextOptions selects the sections of BuildContext.
type ContextOptions struct {
	Memories  bool
	History   bool
	Knowledge bool
}

// DefaultContextOptions includes important memories only. Recent history is
// already sent to the model as messages.
var DefaultContextOptions = ContextOptions{Memories: true}

// BuildContext renders the user's preferences, important memories and
// optionally recent conversation as a prompt section.
func (m *Manager) BuildContext(ctx context.Context, sessionID string, opts ContextOptions) (string, error) {
	var parts []string

	prefs, err := m.Preferences(ctx)
	if err != nil {
		return "", err
	}
	parts = append(parts, fmt.Sprintf("User preference: %s responses", prefs.ResponseStyle))

	if opts.Memories {
		important, err := m.List(ctx, "", 7)
		if err != nil {
			return "", err
		}
		if len(important) > 0 {
			parts = append(parts, "\n=== IMPORTANT MEMORIES ===")
			for i, mem := range important {
				if i == 5 {
					break
				}
				parts = append(parts, fmt.Sprintf("• %s: %s", mem.Key, mem.Value))
			}
		}
	}

	if opts.History && sessionID != "" {
		recent, err := m.store.History(ctx, m.userID, sessionID, 5)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
		if len(recent) > 0 {
			parts = append(parts, "\n=== RECENT CONVERSATION ===")
			for _, msg := range recent {
				parts = append(parts, fmt.Sprintf("%s: %s...", msg.Role, truncateRunes(msg.Content, 100)))
			}
		}
	}

	if opts.Knowledge {
		parts = append(parts, "\n=== AVAILABLE KNOWLEDGE ===")
		parts = append(parts, "Access to system knowledge base for detailed information")
	}

	return strings.Join(parts, "\n"), nil
}
