package chatctx

import (
	"math"

	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const (
	defaultCharsPerToken = 3.5
	// roleOverheadTokens approximates the chat template tokens around each message.
	roleOverheadTokens = 4
)

// TokenEstimator approximates token counts from character length.
type TokenEstimator struct {
	charsPerToken float64
}

// NewTokenEstimator returns an estimator using the default ratio.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{charsPerToken: defaultCharsPerToken}
}

// Estimate returns ceil(len(s) / charsPerToken).
func (e *TokenEstimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / e.charsPerToken))
}

// EstimateMessages sums content estimates plus per-message role overhead.
func (e *TokenEstimator) EstimateMessages(msgs []api.Message) int {
	total := 0
	for _, m := range msgs {
		total += roleOverheadTokens + e.Estimate(m.Content)
	}
	return total
}
