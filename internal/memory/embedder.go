package memory

import (
	"context"
	"math"

	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
)

// EmbedFunc is a function that produces a float32 embedding vector from text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// NewOllamaEmbedFunc returns an EmbedFunc backed by the daemon's embeddings
// endpoint. Vectors are normalized to unit length.
func NewOllamaEmbedFunc(client *ollama.Client, model string) EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		raw, err := client.Embed(ctx, model, text)
		if err != nil {
			return nil, err
		}
		vec := make([]float32, len(raw))
		for i, v := range raw {
			vec[i] = float32(v)
		}
		normalizeVector(vec)
		return vec, nil
	}
}

// normalizeVector scales v to unit length in place. A zero vector is left as is.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
