package backend

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const (
	DefaultUser    = "anonymous"
	DefaultSession = "default_session"
)

// Key identifies a backend.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return k.UserID + "\x00" + k.SessionID
}

// NewKey applies the anonymous user and default session fallbacks.
func NewKey(userID, sessionID string) Key {
	if userID == "" {
		userID = DefaultUser
	}
	if sessionID == "" {
		sessionID = DefaultSession
	}
	return Key{UserID: userID, SessionID: sessionID}
}

// Manager is a thread-safe registry of backends.
type Manager struct {
	deps *Deps

	mu       sync.Mutex
	backends map[Key]*Backend
	creating singleflight.Group
}

// NewManager returns an empty registry sharing deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: &deps, backends: make(map[Key]*Backend)}
}

// Models returns the shared model catalogue.
func (m *Manager) Models() *Models {
	return m.deps.Models
}

// Get returns the backend for (userID, sessionID), creating it and restoring
// its persisted history on first use. Creation runs outside the registry lock
// and concurrent callers for the same key share one creation.
func (m *Manager) Get(ctx context.Context, userID, sessionID string) (*Backend, error) {
	key := NewKey(userID, sessionID)
	if b := m.lookup(key); b != nil {
		return b, nil
	}

	ch := m.creating.DoChan(key.String(), func() (any, error) {
		if b := m.lookup(key); b != nil {
			return b, nil
		}
		b, err := newBackend(context.WithoutCancel(ctx), m.deps, key.UserID, key.SessionID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.backends[key] = b
		m.mu.Unlock()
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Backend), nil
	}
}

func (m *Manager) lookup(key Key) *Backend {
	m.mu.Lock()
	b, ok := m.backends[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	b.touch()
	return b
}

// Clear removes the backend and clears the session's history.
func (m *Manager) Clear(ctx context.Context, userID, sessionID string) error {
	key := NewKey(userID, sessionID)

	m.mu.Lock()
	b, ok := m.backends[key]
	delete(m.backends, key)
	m.mu.Unlock()

	if ok {
		return b.ClearHistory(ctx)
	}
	return m.deps.Store.ClearHistory(ctx, key.UserID, key.SessionID)
}

// Reply runs one synchronous exchange for (userID, sessionID): the message is
// recorded, memories are extracted, and the reply is generated and recorded.
func (m *Manager) Reply(ctx context.Context, userID, sessionID, message string) (string, error) {
	b, err := m.Get(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := b.AddToHistory(ctx, "user", message); err != nil {
		return "", err
	}
	if _, err := b.ExtractMemories(ctx, message); err != nil {
		log.Printf("Memory extraction failed for %s: %v", userID, err)
	}
	reply, err := b.Generate(ctx, message)
	if err != nil {
		return "", err
	}
	if err := b.AddToHistory(ctx, "assistant", reply); err != nil {
		return "", err
	}
	return reply, nil
}

// List returns the registered sessions ordered by user, then session.
func (m *Manager) List() []api.SessionRef {
	m.mu.Lock()
	out := make([]api.SessionRef, 0, len(m.backends))
	for k := range m.backends {
		out = append(out, api.SessionRef{UserIdentifier: k.UserID, SessionID: k.SessionID})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserIdentifier != out[j].UserIdentifier {
			return out[i].UserIdentifier < out[j].UserIdentifier
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Sweep evicts backends idle for longer than retention, then closes and
// deletes persisted sessions past retention.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	m.mu.Lock()
	for k, b := range m.backends {
		if b.idleSince().Before(cutoff) {
			delete(m.backends, k)
		}
	}
	m.mu.Unlock()

	closed, err := m.deps.Store.DeactivateIdleSessions(ctx, retention)
	if err != nil {
		return err
	}
	deleted, err := m.deps.Store.CleanupSessions(ctx, "", retention)
	if err != nil {
		return err
	}
	if closed > 0 || deleted > 0 {
		log.Printf("Session sweep: %d closed, %d deleted", closed, deleted)
	}
	return nil
}

// RunJanitor sweeps every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, every time.Duration) {
	retention := m.deps.Config.SessionRetention
	if retention <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx, retention); err != nil {
				log.Printf("Session sweep failed: %v", err)
			}
		}
	}
}
