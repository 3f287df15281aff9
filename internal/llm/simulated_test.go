package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineResponse(t *testing.T) {
	out := OfflineResponse("hello there")
	assert.True(t, strings.HasPrefix(out, "⚠️ **Offline Mode**"))
	assert.True(t, strings.HasSuffix(out, `Your message: "hello there"`))
}

func TestTypeWordByWord(t *testing.T) {
	var tokens []string
	err := Type(context.Background(), "one two  three", 0, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two ", " ", "three"}, tokens)
	assert.Equal(t, "one two  three", strings.Join(tokens, ""))
}

func TestTypeHonoursDelay(t *testing.T) {
	start := time.Now()
	err := Type(context.Background(), "a b c", 5*time.Millisecond, func(string) error { return nil })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestTypeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	err := Type(ctx, "a b c d e", time.Hour, func(string) error {
		n++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestSimulatedProvider(t *testing.T) {
	p := NewSimulatedProvider(0)
	assert.Equal(t, "simulated", p.Name())
	assert.True(t, p.Available(context.Background()))

	req := Request{Messages: []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
	}}
	out, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OfflineResponse("second"), out)
}
