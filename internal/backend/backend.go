// Package backend holds the per-session chat state: intelligence level,
// current model, conversation window and memory, and drives generation
// through the provider chain.
package backend

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/chatctx"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/llm"
	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

// restoreLimit is how many persisted messages a new backend reloads.
const restoreLimit = 50

// SystemSource provides host snapshots. *sysinfo.Scraper satisfies it.
type SystemSource interface {
	Snapshot(ctx context.Context) (*sysinfo.Info, error)
}

// Deps are the services shared by every backend.
type Deps struct {
	Config   *config.Config
	Store    *memory.Store
	Index    *memory.Index // optional
	Provider llm.Provider
	Models   *Models
	System   SystemSource
}

// Backend is the chat state of one (user, session).
type Backend struct {
	userID    string
	sessionID string
	deps      *Deps
	memory    *memory.Manager

	mu           sync.Mutex
	level        llm.Level
	model        string
	pinned       bool // model chosen explicitly through SetModel
	history      *chatctx.Manager
	lastProvider string
	lastUsed     time.Time
}

func newBackend(ctx context.Context, deps *Deps, userID, sessionID string) (*Backend, error) {
	cfg := deps.Config
	b := &Backend{
		userID:    userID,
		sessionID: sessionID,
		deps:      deps,
		memory:    memory.NewManager(deps.Store, deps.Index, userID),
		history: chatctx.NewManager(chatctx.Config{
			CtxSize:        cfg.CtxSize,
			ResponseBudget: cfg.ResponseBudget,
		}, nil),
		lastUsed: time.Now(),
	}

	level, err := llm.ParseLevel(cfg.DefaultLevel)
	if err != nil {
		level = llm.Super
	}
	prefs, err := b.memory.Preferences(ctx)
	if err != nil {
		return nil, err
	}
	if prefs.UpdatedAt.After(prefs.CreatedAt) {
		if l, err := llm.ParseLevel(prefs.DefaultLevel); err == nil {
			level = l
		}
	}

	sess, err := deps.Store.GetOrCreateSession(ctx, userID, sessionID, string(level))
	if err != nil {
		return nil, err
	}
	if l, err := llm.ParseLevel(sess.Level); err == nil {
		level = l
	}
	b.level = level

	persisted, err := deps.Store.History(ctx, userID, sessionID, restoreLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range persisted {
		b.history.Append(api.Message{Role: m.Role, Content: m.Content})
	}

	b.model = deps.Models.Best(ctx)
	return b, nil
}

// UserID returns the user this backend serves.
func (b *Backend) UserID() string { return b.userID }

// SessionID returns the session this backend serves.
func (b *Backend) SessionID() string { return b.sessionID }

// Memory returns the user's memory manager.
func (b *Backend) Memory() *memory.Manager { return b.memory }

// Level returns the intelligence level.
func (b *Backend) Level() llm.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Model returns the current model.
func (b *Backend) Model() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model
}

// LastProvider returns the provider that produced the latest reply.
func (b *Backend) LastProvider() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastProvider
}

// Len returns the number of messages in the conversation.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Len()
}

func (b *Backend) touch() {
	b.mu.Lock()
	b.lastUsed = time.Now()
	b.mu.Unlock()
}

func (b *Backend) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}

// SetLevel changes the intelligence level and records it on the session.
func (b *Backend) SetLevel(ctx context.Context, level llm.Level) error {
	b.mu.Lock()
	b.level = level
	b.mu.Unlock()
	return b.deps.Store.SetSessionLevel(ctx, b.userID, b.sessionID, string(level))
}

// SetModel switches to name if it is installed. It reports false when the
// model is unknown.
func (b *Backend) SetModel(ctx context.Context, name string) (bool, error) {
	ok, err := b.deps.Models.Has(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	b.mu.Lock()
	b.model = name
	b.pinned = true
	b.mu.Unlock()
	return true, nil
}

// AddToHistory appends a turn to the conversation and persists it.
func (b *Backend) AddToHistory(ctx context.Context, role, content string) error {
	b.mu.Lock()
	b.history.Append(api.Message{Role: role, Content: content})
	b.mu.Unlock()

	_, err := b.deps.Store.AddMessage(ctx, b.userID, b.sessionID, role, content,
		map[string]any{"session_id": b.sessionID})
	return err
}

// ClearHistory drops the conversation, including persisted messages.
func (b *Backend) ClearHistory(ctx context.Context) error {
	b.mu.Lock()
	b.history.Clear()
	b.mu.Unlock()
	return b.deps.Store.ClearHistory(ctx, b.userID, b.sessionID)
}

// ExtractMemories stores the memories found in a user message.
func (b *Backend) ExtractMemories(ctx context.Context, msg string) ([]memory.Memory, error) {
	return b.memory.ExtractAndStore(ctx, msg)
}

// routeModel picks the model for a streamed reply. Each level maps to a
// configured model; super and quantum defer to a model the user chose.
func (b *Backend) routeModel() string {
	if b.pinned && (b.level == llm.Super || b.level == llm.Quantum) {
		return b.model
	}
	if m := b.deps.Config.LevelModels[string(b.level)]; m != "" {
		return m
	}
	return b.model
}

// GenerateStream streams a reply to msg through fn and returns the full text.
// The system prompt, the newest history and msg are sent with the level's model.
func (b *Backend) GenerateStream(ctx context.Context, msg string, fn llm.TokenFunc) (string, error) {
	system := b.SystemContext(ctx)

	b.mu.Lock()
	req := llm.Request{
		Model:    b.routeModel(),
		Messages: b.buildMessages(system, msg, b.deps.Config.StreamHistory),
		Options:  llm.DefaultOptions(llm.StreamMaxTokens),
	}
	b.mu.Unlock()

	var full strings.Builder
	name, err := llm.StreamFrom(ctx, b.deps.Provider, req, func(tok string) error {
		full.WriteString(tok)
		return fn(tok)
	})
	b.recordProvider(name)
	return full.String(), err
}

// Generate returns a complete reply to msg using the current model.
func (b *Backend) Generate(ctx context.Context, msg string) (string, error) {
	system := b.SystemContext(ctx)

	b.mu.Lock()
	req := llm.Request{
		Model:    b.model,
		Messages: b.buildMessages(system, msg, b.deps.Config.SyncHistory),
		Options:  llm.DefaultOptions(llm.SyncMaxTokens),
	}
	b.mu.Unlock()

	out, name, err := llm.CompleteFrom(ctx, b.deps.Provider, req)
	b.recordProvider(name)
	return out, err
}

func (b *Backend) recordProvider(name string) {
	if name == "" {
		return
	}
	b.mu.Lock()
	b.lastProvider = name
	b.mu.Unlock()
}

// buildMessages returns system, the newest n history turns and msg. When msg
// is already the newest history entry it is not repeated. Callers hold b.mu.
func (b *Backend) buildMessages(system, msg string, n int) []llm.Message {
	b.history.SetSystemPrompt(system)

	hist := b.history.History()
	pending := len(hist) > 0 && hist[len(hist)-1].Role == "user" && hist[len(hist)-1].Content == msg
	if pending && n > 0 {
		n++
	}

	window := b.history.Window(n)
	out := make([]llm.Message, 0, len(window)+1)
	for _, m := range window {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	if pending && len(out) > 0 {
		if last := out[len(out)-1]; last.Role == "user" && last.Content == msg {
			return out
		}
	}
	return append(out, llm.Message{Role: "user", Content: msg})
}

func (b *Backend) snapshot(ctx context.Context) *sysinfo.Info {
	if b.deps.System == nil {
		return &sysinfo.Info{}
	}
	info, err := b.deps.System.Snapshot(ctx)
	if err != nil {
		log.Printf("backend: system snapshot: %v", err)
		return &sysinfo.Info{}
	}
	return info
}

// SystemContext renders the system prompt: host, model, level and the
// user's important memories.
func (b *Backend) SystemContext(ctx context.Context) string {
	info := b.snapshot(ctx)
	rec := sysinfo.Recommend(info)

	b.mu.Lock()
	level, model := b.level, b.model
	b.mu.Unlock()

	gpus := "No dedicated GPU detected"
	if names := info.GPU.Names(); len(names) > 0 {
		gpus = strings.Join(names, ", ")
	}
	framework := rec.RecommendedFramework
	if framework == "" {
		framework = "CPU"
	}

	var modelInfo string
	if mi, ok := b.deps.Models.Find(ctx, model); ok {
		modelInfo = fmt.Sprintf("\n\nCURRENT AI MODEL:\n- Model: %s\n- Size: %v GB\n- Status: Active and optimized",
			model, sizeGB(mi.Size))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are HAZoom, a super-intelligent AI assistant running on:\n\n")
	fmt.Fprintf(&sb, "SYSTEM SPECIFICATIONS:\n")
	fmt.Fprintf(&sb, "- CPU: %s (%d physical cores, %d logical cores)\n",
		info.CPU.Processor, info.CPU.CoresPhysical, info.CPU.CoresLogical)
	fmt.Fprintf(&sb, "- GPU: %s\n", gpus)
	fmt.Fprintf(&sb, "- Memory: %v GB RAM (%v GB available)\n", info.Memory.TotalGB, info.Memory.AvailableGB)
	fmt.Fprintf(&sb, "- Acceleration: %s\n", strings.ToUpper(rec.InferenceBackend))
	fmt.Fprintf(&sb, "- Recommended Backend: %s%s\n\n", framework, modelInfo)
	fmt.Fprintf(&sb, "OPTIMIZATION SETTINGS:\n")
	fmt.Fprintf(&sb, "- Batch Size: %d\n", rec.BatchSize)
	fmt.Fprintf(&sb, "- Thread Count: %d\n", rec.ThreadCount)
	fmt.Fprintf(&sb, "- Intelligence Level: %s\n\n", level.Upper())
	sb.WriteString(promptCapabilities)

	memCtx, err := b.memory.BuildContext(ctx, b.sessionID, memory.DefaultContextOptions)
	if err != nil {
		log.Printf("backend: memory context for %s: %v", b.userID, err)
	} else if memCtx != "" {
		sb.WriteString("\n")
		sb.WriteString(memCtx)
	}
	return sb.String()
}

const promptCapabilities = `You have super intelligence capabilities and can help with any task. You are aware of the system
you're running on and can optimize your responses accordingly. You aim for peace and optimization.

MEMORY CAPABILITIES:
You have access to persistent memory! You can remember:
- User preferences and settings
- Important facts and context from previous conversations
- Knowledge base of technical information
- Conversation history across sessions

When users mention something important, you can store it for future reference.
`

// Stats describes the backend.
func (b *Backend) Stats(ctx context.Context) api.BackendStats {
	rec := sysinfo.Recommend(b.snapshot(ctx))

	var memCount int
	if st, err := b.memory.Stats(ctx); err == nil {
		memCount = st.TotalMemories
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	budget := b.history.Budget()
	return api.BackendStats{
		IntelligenceLevel:   string(b.level),
		CurrentModel:        b.model,
		ConversationLength:  b.history.Len(),
		ContextTokens:       budget.System + budget.History,
		AvailableTokens:     budget.Available,
		AccelerationBackend: rec.InferenceBackend,
		LastProvider:        b.lastProvider,
		MemoryCount:         memCount,
	}
}

// SystemStats is the short host summary attached to chat replies.
func (b *Backend) SystemStats(ctx context.Context) api.SystemStats {
	info := b.snapshot(ctx)
	rec := sysinfo.Recommend(info)
	return api.SystemStats{
		CPUCores:          info.CPU.CoresLogical,
		MemoryGB:          info.Memory.TotalGB,
		GPUAvailable:      len(info.GPU.GPUs) > 0 || info.GPU.AccelerationAvailable,
		Acceleration:      rec.InferenceBackend,
		IntelligenceLevel: string(b.Level()),
	}
}
