package llm

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when every provider in a chain is unavailable
// or failed before producing output.
var ErrNoProvider = errors.New("no LLM provider available")

const (
	// StreamMaxTokens caps streamed replies.
	StreamMaxTokens = 2000
	// SyncMaxTokens caps non-streamed replies.
	SyncMaxTokens = 1000
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling parameters of a request.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// DefaultOptions returns temperature 0.7 and top_p 0.9 with the given cap.
func DefaultOptions(maxTokens int) Options {
	return Options{Temperature: 0.7, TopP: 0.9, MaxTokens: maxTokens}
}

// Request is a chat generation request. Model names an Ollama model;
// hosted providers use their configured model instead.
type Request struct {
	Model    string
	Messages []Message
	Options  Options
}

// LastUserMessage returns the content of the newest user message.
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// TokenFunc receives streamed tokens. Returning an error aborts the stream.
type TokenFunc func(token string) error

// Provider generates chat completions.
// Implementations include OllamaProvider, OpenAIProvider, AnthropicProvider
// and SimulatedProvider.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Stream(ctx context.Context, req Request, fn TokenFunc) error
	Complete(ctx context.Context, req Request) (string, error)
}

// router is a provider that delegates to others and can say which one
// answered. *Chain implements it.
type router interface {
	StreamVia(ctx context.Context, req Request, fn TokenFunc) (string, error)
	CompleteVia(ctx context.Context, req Request) (string, string, error)
}

// StreamFrom streams through p and returns the name of the provider that
// answered.
func StreamFrom(ctx context.Context, p Provider, req Request, fn TokenFunc) (string, error) {
	if r, ok := p.(router); ok {
		return r.StreamVia(ctx, req, fn)
	}
	return p.Name(), p.Stream(ctx, req, fn)
}

// CompleteFrom completes through p and returns the reply and the name of the
// provider that answered.
func CompleteFrom(ctx context.Context, p Provider, req Request) (string, string, error) {
	if r, ok := p.(router); ok {
		return r.CompleteVia(ctx, req)
	}
	out, err := p.Complete(ctx, req)
	return out, p.Name(), err
}
