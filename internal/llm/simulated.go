package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const offlineTemplate = "⚠️ **Offline Mode**\n\nI'm currently running in offline mode. " +
	"To use full LLM capabilities, ensure the HAZoom backend is running.\n\nYour message: \"%s\""

// OfflineResponse is the canned reply used when no model is reachable.
func OfflineResponse(userMessage string) string {
	return fmt.Sprintf(offlineTemplate, userMessage)
}

// SimulatedProvider answers with the offline template, typed out word by word.
// It is always available and is meant to terminate a Chain.
type SimulatedProvider struct {
	delay time.Duration
}

// NewSimulatedProvider returns a provider that waits delay between words.
func NewSimulatedProvider(delay time.Duration) *SimulatedProvider {
	return &SimulatedProvider{delay: delay}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) Available(ctx context.Context) bool { return true }

func (p *SimulatedProvider) Stream(ctx context.Context, req Request, fn TokenFunc) error {
	return Type(ctx, OfflineResponse(req.LastUserMessage()), p.delay, fn)
}

func (p *SimulatedProvider) Complete(ctx context.Context, req Request) (string, error) {
	return OfflineResponse(req.LastUserMessage()), nil
}

// Type emits text one word at a time, each word keeping its trailing space,
// pausing delay between words. The emitted tokens concatenate to text.
func Type(ctx context.Context, text string, delay time.Duration, fn TokenFunc) error {
	words := strings.SplitAfter(text, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if err := fn(w); err != nil {
			return err
		}
		if delay <= 0 || i == len(words)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
