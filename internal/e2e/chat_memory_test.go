package e2e

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/hub"
	"github.com/hazem-soussi-HA/hazoom/internal/llm"
	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
	"github.com/hazem-soussi-HA/hazoom/internal/server"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const embedDim = 64

// mockEmbedFunc produces deterministic 64-dim normalized vectors using FNV hash.
func mockEmbedFunc(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(text)))
	seed := h.Sum64()

	vec := make([]float32, embedDim)
	for i := range vec {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, seed+uint64(i))
		h2 := fnv.New32a()
		h2.Write(b)
		vec[i] = float32(h2.Sum32())/float32(math.MaxUint32)*2 - 1
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// recordingProvider answers every request and keeps the system prompts it saw.
type recordingProvider struct {
	mu      sync.Mutex
	prompts []string
}

func (p *recordingProvider) Name() string                       { return "recording" }
func (p *recordingProvider) Available(ctx context.Context) bool { return true }

func (p *recordingProvider) Stream(ctx context.Context, req llm.Request, fn llm.TokenFunc) error {
	reply, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	return llm.Type(ctx, reply, 0, fn)
}

func (p *recordingProvider) Complete(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range req.Messages {
		if m.Role == "system" {
			p.prompts = append(p.prompts, m.Content)
			break
		}
	}
	return "Noted: " + req.LastUserMessage(), nil
}

func (p *recordingProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

type staticSystem struct{}

func (staticSystem) Snapshot(ctx context.Context) (*sysinfo.Info, error) {
	return &sysinfo.Info{
		CPU:          sysinfo.CPU{Processor: "test-cpu", CoresPhysical: 4, CoresLogical: 8},
		Memory:       sysinfo.Memory{TotalGB: 16, AvailableGB: 8},
		Acceleration: sysinfo.Acceleration{RecommendedBackend: "cpu"},
	}, nil
}

type stack struct {
	ts       *httptest.Server
	provider *recordingProvider
	store    *memory.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()

	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			json.NewEncoder(w).Encode(ollama.ListModelsResponse{Models: []ollama.ModelInfo{{Name: "llama2:latest", Size: 3_800_000_000}}})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(daemon.Close)

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DatabasePath = filepath.Join(cfg.DataDir, "hazoom.db")
	cfg.TypingDelay = 0

	store, err := memory.Open(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := memory.NewInMemoryIndex(mockEmbedFunc)
	require.NoError(t, err)

	client := ollama.New(ollama.ClientConfig{BaseURL: daemon.URL, Timeout: 2 * time.Second})
	provider := &recordingProvider{}
	mgr := backend.NewManager(backend.Deps{
		Config:   cfg,
		Store:    store,
		Index:    index,
		Provider: llm.NewChain(provider, llm.NewSimulatedProvider(0)),
		Models:   backend.NewModels(client, nil, cfg.PreferredModels, cfg.FallbackModel),
		System:   staticSystem{},
	})

	srv := server.New(server.Deps{Config: cfg, Backends: mgr, Store: store, Index: index, System: staticSystem{}})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return &stack{ts: ts, provider: provider, store: store}
}

func (s *stack) post(t *testing.T, path string, body, out any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(s.ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (s *stack) get(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func noStream() *bool {
	f := false
	return &f
}

func TestChatRemembersAcrossSessions(t *testing.T) {
	s := newStack(t)

	var first api.ChatResponse
	s.post(t, "/api/llm/chat", api.ChatRequest{
		Message:        "Hi, my name is Ada and I love functional programming",
		Stream:         noStream(),
		SessionID:      "s1",
		UserIdentifier: "ada",
	}, &first)
	assert.Equal(t, "Noted: Hi, my name is Ada and I love functional programming", first.Response)
	assert.Equal(t, "recording", first.Provider)

	// A new session of the same user sees the extracted memories in its prompt.
	var second api.ChatResponse
	s.post(t, "/api/llm/chat", api.ChatRequest{
		Message:        "What do you know about me?",
		Stream:         noStream(),
		SessionID:      "s2",
		UserIdentifier: "ada",
	}, &second)
	assert.Contains(t, s.provider.lastPrompt(), "user_name: Ada")

	// Other users do not.
	s.post(t, "/api/llm/chat", api.ChatRequest{
		Message:        "Who am I?",
		Stream:         noStream(),
		SessionID:      "s3",
		UserIdentifier: "bob",
	}, nil)
	assert.NotContains(t, s.provider.lastPrompt(), "Ada")

	var found api.MemoriesResponse
	s.post(t, "/api/memory/search", api.SearchMemoryRequest{Query: "Ada", UserIdentifier: "ada"}, &found)
	keys := make([]string, 0, found.Count)
	for _, m := range found.Memories {
		keys = append(keys, m.Key)
	}
	assert.Contains(t, keys, "user_name")

	var hist api.HistoryResponse
	s.get(t, "/api/llm/history?session_id=s1&user_identifier=ada", &hist)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "user", hist.Messages[0].Role)
	assert.Equal(t, "assistant", hist.Messages[1].Role)
}

func TestClearKeepsMemories(t *testing.T) {
	s := newStack(t)

	s.post(t, "/api/llm/chat", api.ChatRequest{
		Message:        "Remember that the deploy window is Friday",
		Stream:         noStream(),
		SessionID:      "ops",
		UserIdentifier: "sam",
	}, nil)
	s.post(t, "/api/llm/clear", api.SessionRef{SessionID: "ops", UserIdentifier: "sam"}, nil)

	var hist api.HistoryResponse
	s.get(t, "/api/llm/history?session_id=ops&user_identifier=sam", &hist)
	assert.Empty(t, hist.Messages)

	var list api.MemoriesResponse
	s.get(t, "/api/memory/list?user_identifier=sam", &list)
	assert.NotZero(t, list.Count)
}

func TestWebsocketReplyIsPersisted(t *testing.T) {
	s := newStack(t)

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() hub.Envelope {
		t.Helper()
		var env hub.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		return env
	}

	assert.Equal(t, hub.TypeConnected, read().Type)

	join, _ := hub.NewEnvelope(hub.TypeJoinChat, hub.JoinChatMessage{SessionID: "room-s", UserName: "kim"})
	require.NoError(t, conn.WriteJSON(join))
	assert.Equal(t, hub.TypeChatJoined, read().Type)

	msg, _ := hub.NewEnvelope(hub.TypeSendMessage, hub.SendMessageMessage{Message: "hello there", Type: "text"})
	require.NoError(t, conn.WriteJSON(msg))
	assert.Equal(t, hub.TypeNewMessage, read().Type)

	env := read()
	require.Equal(t, hub.TypeAIResponse, env.Type)
	var reply hub.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.Equal(t, "Noted: hello there", reply.Message)

	msgs, err := s.store.History(context.Background(), "kim", "room-s", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Noted: hello there", msgs[1].Content)
}
