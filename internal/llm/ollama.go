package llm

import (
	"context"
	"fmt"

	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
)

// OllamaProvider generates through a local Ollama daemon.
type OllamaProvider struct {
	client *ollama.Client
	model  string
}

// NewOllamaProvider returns a provider that uses model when a request names none.
func NewOllamaProvider(client *ollama.Client, model string) *OllamaProvider {
	return &OllamaProvider{client: client, model: model}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Available(ctx context.Context) bool {
	return p.client.CheckRunning(ctx) == nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request, fn TokenFunc) error {
	chatReq := p.chatRequest(req, true)
	_, err := p.client.ChatStream(ctx, chatReq, fn)
	return describe(chatReq.Model, err)
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (string, error) {
	chatReq := p.chatRequest(req, false)
	resp, err := p.client.Chat(ctx, chatReq)
	if err != nil {
		return "", describe(chatReq.Model, err)
	}
	return resp.Message.Content, nil
}

// describe names the model in timeout and missing-model errors. The
// ollama error stays in the chain.
func describe(model string, err error) error {
	switch {
	case err == nil:
		return nil
	case ollama.IsTimeout(err):
		return fmt.Errorf("%s did not answer in time: %w", model, err)
	case ollama.IsModelNotFound(err):
		return fmt.Errorf("%s is not installed: %w", model, err)
	}
	return err
}

func (p *OllamaProvider) chatRequest(req Request, stream bool) ollama.ChatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return ollama.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Options: &ollama.Options{
			Temperature: req.Options.Temperature,
			TopP:        req.Options.TopP,
			NumPredict:  req.Options.MaxTokens,
		},
	}
}
