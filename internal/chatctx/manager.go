package chatctx

import (
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

// Config configures the context manager.
type Config struct {
	CtxSize        int // total context window in tokens (default 4096)
	ResponseBudget int // tokens reserved for model output (default 512)
}

// BudgetInfo contains token budget breakdown information.
type BudgetInfo struct {
	Total        int `json:"total"`
	System       int `json:"system"`
	History      int `json:"history"`
	Available    int `json:"available"`
	HistoryCount int `json:"history_count"`
	TotalHistory int `json:"total_history"`
}

// Manager manages windowed message history with token budget tracking.
// The system prompt is pinned. History is windowed from the newest message
// backwards.
type Manager struct {
	cfg          Config
	estimator    *TokenEstimator
	systemPrompt string
	history      []api.Message
}

// NewManager creates a Manager with the given config and estimator.
func NewManager(cfg Config, estimator *TokenEstimator) *Manager {
	if cfg.CtxSize <= 0 {
		cfg.CtxSize = 4096
	}
	if cfg.ResponseBudget <= 0 {
		cfg.ResponseBudget = 512
	}
	if estimator == nil {
		estimator = NewTokenEstimator()
	}
	return &Manager{
		cfg:       cfg,
		estimator: estimator,
	}
}

// SetSystemPrompt sets the pinned system prompt.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.systemPrompt = prompt
}

// Append adds a single message to history.
func (m *Manager) Append(msg api.Message) {
	m.history = append(m.history, msg)
}

// Window returns the system prompt followed by the newest history that fits
// the token budget, at most maxMessages of it. Zero means no cap.
func (m *Manager) Window(maxMessages int) []api.Message {
	pinned := m.pinned()
	available := m.cfg.CtxSize - m.cfg.ResponseBudget - m.estimator.EstimateMessages(pinned)
	if available < 0 {
		available = 0
	}

	cutoff := m.cutoff(available, maxMessages)

	result := make([]api.Message, 0, len(pinned)+len(m.history)-cutoff)
	result = append(result, pinned...)
	result = append(result, m.history[cutoff:]...)
	return result
}

// cutoff walks history backwards and returns the index of the oldest
// message that still fits.
func (m *Manager) cutoff(available, maxMessages int) int {
	cutoff := len(m.history)
	used := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if maxMessages > 0 && len(m.history)-i > maxMessages {
			break
		}
		msgTokens := m.estimator.EstimateMessages(m.history[i : i+1])
		if used+msgTokens > available {
			break
		}
		used += msgTokens
		cutoff = i
	}
	return cutoff
}

func (m *Manager) pinned() []api.Message {
	if m.systemPrompt == "" {
		return nil
	}
	return []api.Message{{Role: "system", Content: m.systemPrompt}}
}

// Clear resets history, keeping the system prompt.
func (m *Manager) Clear() {
	m.history = nil
}

// Budget returns the current token budget breakdown.
func (m *Manager) Budget() BudgetInfo {
	systemTokens := m.estimator.EstimateMessages(m.pinned())

	available := m.cfg.CtxSize - m.cfg.ResponseBudget - systemTokens
	if available < 0 {
		available = 0
	}
	cutoff := m.cutoff(available, 0)
	windowed := m.history[cutoff:]
	historyTokens := m.estimator.EstimateMessages(windowed)

	available -= historyTokens
	if available < 0 {
		available = 0
	}

	return BudgetInfo{
		Total:        m.cfg.CtxSize,
		System:       systemTokens,
		History:      historyTokens,
		Available:    available,
		HistoryCount: len(windowed),
		TotalHistory: len(m.history),
	}
}

// History returns a copy of the full history (including evicted messages).
func (m *Manager) History() []api.Message {
	out := make([]api.Message, len(m.history))
	copy(out, m.history)
	return out
}

// Len returns the number of history messages.
func (m *Manager) Len() int {
	return len(m.history)
}
