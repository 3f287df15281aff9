// Package apiclient is a typed HTTP client for the HAZoom server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hazem-soussi-HA/hazoom/internal/sse"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

// Client talks to a HAZoom server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Session and user are sent with every request that accepts them.
	Session string
	User    string
}

// New creates a new Client for the given server URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// StreamChat posts message and returns the SSE events of the reply. The
// channel closes when the server ends the stream.
func (c *Client) StreamChat(ctx context.Context, message, level string) (<-chan sse.Event, error) {
	stream := true
	body, err := json.Marshal(api.ChatRequest{
		Message:           message,
		Stream:            &stream,
		IntelligenceLevel: level,
		SessionID:         c.Session,
		UserIdentifier:    c.User,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/llm/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}

	return wrapStreamWithCleanup(ctx, sse.Parse(ctx, resp.Body), resp.Body), nil
}

// Chat sends a non-streaming chat request.
func (c *Client) Chat(ctx context.Context, message, level string) (*api.ChatResponse, error) {
	stream := false
	var result api.ChatResponse
	err := c.postJSON(ctx, "/api/llm/chat", api.ChatRequest{
		Message:           message,
		Stream:            &stream,
		IntelligenceLevel: level,
		SessionID:         c.Session,
		UserIdentifier:    c.User,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetLevel changes the intelligence level of the client's session.
func (c *Client) SetLevel(ctx context.Context, level string) (*api.LevelResponse, error) {
	var result api.LevelResponse
	err := c.postJSON(ctx, "/api/llm/intelligence", api.LevelRequest{
		Level:          level,
		SessionID:      c.Session,
		UserIdentifier: c.User,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Clear wipes the session's conversation history.
func (c *Client) Clear(ctx context.Context) error {
	return c.postJSON(ctx, "/api/llm/clear", api.SessionRef{
		SessionID:      c.Session,
		UserIdentifier: c.User,
	}, nil)
}

// Stats returns the session's backend statistics.
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var result api.StatsResponse
	if err := c.getJSON(ctx, "/api/llm/stats", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health returns the LLM health report.
func (c *Client) Health(ctx context.Context) (*api.LLMHealthResponse, error) {
	var result api.LLMHealthResponse
	if err := c.getJSON(ctx, "/api/llm/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// KnowledgeAdd stores a knowledge entry.
func (c *Client) KnowledgeAdd(ctx context.Context, req api.KnowledgeAddRequest) (*api.KnowledgeResponse, error) {
	var result api.KnowledgeResponse
	if err := c.postJSON(ctx, "/api/memory/knowledge/add", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// KnowledgeSearch searches the knowledge base.
func (c *Client) KnowledgeSearch(ctx context.Context, query, category string, limit int) (*api.KnowledgeResponse, error) {
	var result api.KnowledgeResponse
	err := c.postJSON(ctx, "/api/memory/knowledge/search", api.KnowledgeSearchRequest{
		Query:    query,
		Category: category,
		Limit:    limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, result)
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	q := url.Values{}
	if c.Session != "" {
		q.Set("session_id", c.Session)
	}
	if c.User != "" {
		q.Set("user_identifier", c.User)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(httpReq, result)
}

func (c *Client) do(httpReq *http.Request, result any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsUnreachable reports whether err means the server could not be contacted.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	return !errors.As(err, &se) && !errors.Is(err, context.Canceled)
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(body))
	var er api.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// wrapStreamWithCleanup closes body once events is drained or ctx is done.
// Closing body unblocks the parser.
func wrapStreamWithCleanup(ctx context.Context, events <-chan sse.Event, body io.ReadCloser) <-chan sse.Event {
	out := make(chan sse.Event)
	go func() {
		defer close(out)
		defer body.Close()
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
