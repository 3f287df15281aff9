package llm

import (
	"context"
	"fmt"
	"log"
)

// Chain tries providers in order. A provider that is unavailable, or that
// fails before emitting a token, is skipped. A failure after output has
// started is returned as is so replies are never spliced from two models.
type Chain struct {
	providers []Provider
}

// NewChain returns a chain over providers. Nil providers are dropped.
func NewChain(providers ...Provider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Available reports whether any provider is available.
func (c *Chain) Available(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.Available(ctx) {
			return true
		}
	}
	return false
}

// Names lists the providers in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) Stream(ctx context.Context, req Request, fn TokenFunc) error {
	_, err := c.StreamVia(ctx, req, fn)
	return err
}

// StreamVia streams like Stream and returns the name of the provider that
// produced the output. The name is empty when no provider answered.
func (c *Chain) StreamVia(ctx context.Context, req Request, fn TokenFunc) (string, error) {
	for _, p := range c.providers {
		if !p.Available(ctx) {
			continue
		}

		emitted := false
		err := p.Stream(ctx, req, func(tok string) error {
			emitted = true
			return fn(tok)
		})
		if err == nil {
			return p.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if emitted {
			return p.Name(), fmt.Errorf("%s: %w", p.Name(), err)
		}
		log.Printf("llm: %s failed, trying next provider: %v", p.Name(), err)
	}
	return "", ErrNoProvider
}

func (c *Chain) Complete(ctx context.Context, req Request) (string, error) {
	out, _, err := c.CompleteVia(ctx, req)
	return out, err
}

// CompleteVia completes like Complete and also returns the answering
// provider's name.
func (c *Chain) CompleteVia(ctx context.Context, req Request) (string, string, error) {
	for _, p := range c.providers {
		if !p.Available(ctx) {
			continue
		}
		out, err := p.Complete(ctx, req)
		if err == nil {
			return out, p.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		log.Printf("llm: %s failed, trying next provider: %v", p.Name(), err)
	}
	return "", "", ErrNoProvider
}
