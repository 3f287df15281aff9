// Package ollama is a typed HTTP client for the Ollama daemon API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClientConfig holds connection options for the Ollama client.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds non-streaming requests. Streams are bounded by ctx only.
	Timeout time.Duration
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://127.0.0.1:11434",
		Timeout: 30 * time.Second,
	}
}

// Client is a typed HTTP client for an Ollama daemon.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a new Ollama Client.
func New(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckRunning verifies that the daemon answers.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListModels returns the locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "decode model list", Cause: err}
	}
	return result.Models, nil
}

// Show returns details about a model.
func (c *Client) Show(ctx context.Context, name string) (*ShowResponse, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/show", modelRequest{Name: name, Model: name})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ShowResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "decode show response", Cause: err}
	}
	return &result, nil
}

// Chat sends a non-streaming chat request and returns the reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "decode chat response", Cause: err}
	}
	if result.Error != "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: result.Error}
	}
	return &result, nil
}

// ChatStream sends a streaming chat request and calls fn with each content
// fragment. It returns the concatenated reply. An error from fn aborts the
// stream and is returned as is.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, fn func(token string) error) (string, error) {
	req.Stream = true
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readLines(ctx, resp.Body, func(line []byte) (bool, error) {
		var chunk ChatResponse
		if json.Unmarshal(line, &chunk) != nil {
			return false, nil
		}
		if chunk.Error != "" {
			return true, &ClientError{Type: ErrTypeInvalidResponse, Message: chunk.Error}
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if err := fn(chunk.Message.Content); err != nil {
				return true, err
			}
		}
		return chunk.Done, nil
	})
	return full.String(), err
}

// Pull downloads a model, reporting each status line to progress (which may be nil).
func (c *Client) Pull(ctx context.Context, name string, progress func(PullProgress)) error {
	stream := true
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/pull", modelRequest{Name: name, Model: name, Stream: &stream})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readLines(ctx, resp.Body, func(line []byte) (bool, error) {
		var p PullProgress
		if json.Unmarshal(line, &p) != nil {
			return false, nil
		}
		if p.Error != "" {
			return true, fmt.Errorf("pull %s: %s", name, p.Error)
		}
		if progress != nil {
			progress(p)
		}
		return p.Status == "success", nil
	})
}

// Delete removes a model from the daemon.
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodDelete, "/api/delete", modelRequest{Name: name, Model: name})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float64, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/embeddings", embeddingRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "decode embedding", Cause: err}
	}
	if len(result.Embedding) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty embedding"}
	}
	return result.Embedding, nil
}

// do sends a request and returns the response when the status is 2xx.
// The caller closes the body.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "create request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, &ClientError{Type: ErrTypeModelNotFound, Message: "model not found", Cause: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
		}
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: fmt.Sprintf("Ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}
	return resp, nil
}
