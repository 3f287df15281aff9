package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazem-soussi-HA/hazoom/internal/sse"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

func TestStreamChat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/llm/chat", r.URL.Path)
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, "nano", req.IntelligenceLevel)
		assert.Equal(t, "s1", req.SessionID)
		assert.True(t, req.Streaming())

		sw, err := sse.NewWriter(w)
		require.NoError(t, err)
		sw.Start("s1")
		sw.Token("s1", "Hel")
		sw.Token("s1", "lo")
		sw.End("s1", "Hello")
	}))
	defer ts.Close()

	c := New(ts.URL + "/")
	c.Session = "s1"
	events, err := c.StreamChat(context.Background(), "hi", "nano")
	require.NoError(t, err)

	var names []string
	for ev := range events {
		require.NoError(t, ev.Err)
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{sse.EventStart, sse.EventToken, sse.EventToken, sse.EventEnd}, names)
}

func TestErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid intelligence level","type":"invalid_request_error"}}`)
	}))
	defer ts.Close()

	_, err := New(ts.URL).SetLevel(context.Background(), "mega")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Invalid intelligence level", se.Message)
	assert.False(t, IsUnreachable(err))
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url).Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestStatsSendsSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s9", r.URL.Query().Get("session_id"))
		assert.Equal(t, "ada", r.URL.Query().Get("user_identifier"))
		json.NewEncoder(w).Encode(api.StatsResponse{ConversationLength: 4, IntelligenceLevel: "super"})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.Session, c.User = "s9", "ada"
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.ConversationLength)
	assert.Equal(t, "super", st.IntelligenceLevel)
}

func TestKnowledgeAdd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/memory/knowledge/add", r.URL.Path)
		var req api.KnowledgeAddRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Go", req.Title)
		json.NewEncoder(w).Encode(api.KnowledgeResponse{Status: "success", Count: 1})
	}))
	defer ts.Close()

	resp, err := New(ts.URL).KnowledgeAdd(context.Background(), api.KnowledgeAddRequest{Title: "Go", Content: "A language"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
}

func TestStreamChatStopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, err := sse.NewWriter(w)
		require.NoError(t, err)
		sw.Start("s1")
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := New(ts.URL).StreamChat(ctx, "hi", "")
	require.NoError(t, err)

	first := <-events
	require.Equal(t, sse.EventStart, first.Name)
	cancel()

	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}
