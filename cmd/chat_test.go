package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazem-soussi-HA/hazoom/internal/apiclient"
	"github.com/hazem-soussi-HA/hazoom/internal/config"
	"github.com/hazem-soussi-HA/hazoom/internal/sse"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/llm/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sw, err := sse.NewWriter(w)
		require.NoError(t, err)
		sw.Start(req.SessionID)
		sw.Token(req.SessionID, "echo: ")
		sw.Token(req.SessionID, req.Message)
		sw.End(req.SessionID, "echo: "+req.Message)
	})
	mux.HandleFunc("POST /api/llm/intelligence", func(w http.ResponseWriter, r *http.Request) {
		var req api.LevelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(api.LevelResponse{
			Status:            "success",
			IntelligenceLevel: req.Level,
			Message:           "Intelligence level set to " + strings.ToUpper(req.Level),
		})
	})
	mux.HandleFunc("POST /api/llm/clear", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.StatusResponse{Status: "success"})
	})
	mux.HandleFunc("GET /api/llm/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.StatsResponse{
			Stats:              api.BackendStats{CurrentModel: "llama2:latest"},
			ConversationLength: 2,
			IntelligenceLevel:  "nano",
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestREPLChatAndCommands(t *testing.T) {
	ts := fakeServer(t)
	var out bytes.Buffer
	r := &repl{client: apiclient.New(ts.URL), out: &out}

	in := strings.NewReader("hello\n/level nano\n/stats\n/clear\n/bogus\n/quit\nnever sent\n")
	require.NoError(t, r.run(context.Background(), in))

	got := out.String()
	assert.Contains(t, got, "echo: hello")
	assert.Contains(t, got, "Intelligence level set to NANO")
	assert.Equal(t, "nano", r.level)
	assert.Contains(t, got, "Model:    llama2:latest")
	assert.Contains(t, got, "Conversation history cleared.")
	assert.Contains(t, got, "Unknown command /bogus")
	assert.NotContains(t, got, "never sent")
}

func TestREPLOfflineFallback(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	var out bytes.Buffer
	r := &repl{client: apiclient.New(url), out: &out}
	require.NoError(t, r.run(context.Background(), strings.NewReader("are you there?\n")))

	assert.Contains(t, out.String(), "Offline Mode")
	assert.Contains(t, out.String(), `Your message: "are you there?"`)
}

func newTestRenderer(t *testing.T) *glamour.TermRenderer {
	t.Helper()
	renderer, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(80))
	require.NoError(t, err)
	return renderer
}

func TestREPLRenderStreamsThenRedraws(t *testing.T) {
	ts := fakeServer(t)
	var out bytes.Buffer
	r := &repl{client: apiclient.New(ts.URL), out: &out, renderer: newTestRenderer(t), width: 80}

	require.NoError(t, r.run(context.Background(), strings.NewReader("hello\n/quit\n")))

	got := out.String()
	first := strings.Index(got, "echo: hello")
	erase := strings.Index(got, "\r\x1b[J")
	require.GreaterOrEqual(t, first, 0, "tokens are printed as they arrive")
	require.Greater(t, erase, first, "raw text is erased once the reply is complete")
	assert.Contains(t, got[erase:], "echo: hello", "reply is redrawn after erasing")
}

func TestREPLRenderWithoutTerminal(t *testing.T) {
	ts := fakeServer(t)
	var out bytes.Buffer
	r := &repl{client: apiclient.New(ts.URL), out: &out, renderer: newTestRenderer(t)}

	require.NoError(t, r.run(context.Background(), strings.NewReader("hello\n/quit\n")))

	got := out.String()
	assert.NotContains(t, got, "\x1b[J")
	assert.Equal(t, 1, strings.Count(got, "echo: hello"))
}

func TestREPLRows(t *testing.T) {
	r := &repl{width: 10}
	assert.Equal(t, 1, r.rows(""))
	assert.Equal(t, 1, r.rows("abc"))
	assert.Equal(t, 2, r.rows("a\nb"))
	assert.Equal(t, 3, r.rows(strings.Repeat("x", 25)))
	assert.Equal(t, 4, r.rows(strings.Repeat("x", 25)+"\nend"))
}

func TestNewREPLUsesConfiguredTypingDelay(t *testing.T) {
	cfg := config.DefaultConfig()
	r := newREPL(cfg, apiclient.New("http://127.0.0.1:1"), &bytes.Buffer{}, "nano")
	assert.Equal(t, 50*time.Millisecond, r.delay)
	assert.Equal(t, "nano", r.level)

	cfg.TypingDelay = 0
	assert.Zero(t, newREPL(cfg, nil, &bytes.Buffer{}, "").delay)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 MB", formatSize(3*1024*1024/2))
	assert.Equal(t, "3.8 GB", formatSize(4_080_218_931))
}
