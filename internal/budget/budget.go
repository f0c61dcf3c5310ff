// Package budget reconciles the length limits that apply to one generation
// request into a single effective context length and output cap.
package budget

import (
	"errors"
	"fmt"
)

const (
	// ServiceCeiling is the hard upper bound the service accepts.
	ServiceCeiling = 8192
	// RecommendedMin and RecommendedMax bound the effective length.
	RecommendedMin = 2048
	RecommendedMax = 4096
	// TokenizerSanityLimit marks tokenizer metadata that is clearly bogus
	// (tokenizers without a limit often report ~1e30).
	TokenizerSanityLimit = 1_000_000
	// UnboundedPositions stands in for a model without a position limit.
	UnboundedPositions = 1 << 30
)

// ErrBudgetExhausted means the prompt leaves no room for generated tokens.
var ErrBudgetExhausted = errors.New("token budget exhausted")

// Budget is the per-request resolution of every limit.
type Budget struct {
	TokenizerLimit     int `json:"tokenizer_limit"`
	PositionLimit      int `json:"model_position_limit"`
	ServiceCeiling     int `json:"service_ceiling"`
	RecommendedMin     int `json:"recommended_min"`
	RecommendedMax     int `json:"recommended_max"`
	Requested          int `json:"requested_generation_length"`
	InputTokens        int `json:"input_tokens"`
	EffectiveMaxLength int `json:"effective_max_length"`
	MaxNewTokens       int `json:"max_new_tokens"`
}

// normalizeTokenizer maps unset or anomalous tokenizer limits to the
// recommended maximum.
func normalizeTokenizer(limit int) int {
	if limit <= 0 || limit > TokenizerSanityLimit {
		return RecommendedMax
	}
	return limit
}

func normalizePosition(limit int) int {
	if limit <= 0 {
		return UnboundedPositions
	}
	return limit
}

// StaticMaxLength is the request independent half: the tokenizer limit
// clamped to the recommended range. It is computed once per session.
func StaticMaxLength(tokenizerLimit int) int {
	return clamp(normalizeTokenizer(tokenizerLimit), RecommendedMin, RecommendedMax)
}

// EffectiveMaxLength intersects all limits and lifts the result to the
// recommended minimum.
func EffectiveMaxLength(tokenizerLimit, positionLimit int) int {
	eff := min(normalizeTokenizer(tokenizerLimit), normalizePosition(positionLimit), ServiceCeiling, RecommendedMax)
	return max(eff, RecommendedMin)
}

// Resolve computes the budget for a prompt of inputTokens. requested <= 0
// asks for everything that fits.
func Resolve(tokenizerLimit, positionLimit, inputTokens, requested int) (Budget, error) {
	b := Budget{
		TokenizerLimit: tokenizerLimit,
		PositionLimit:  positionLimit,
		ServiceCeiling: ServiceCeiling,
		RecommendedMin: RecommendedMin,
		RecommendedMax: RecommendedMax,
		Requested:      requested,
		InputTokens:    inputTokens,
	}
	b.EffectiveMaxLength = EffectiveMaxLength(tokenizerLimit, positionLimit)
	room := b.EffectiveMaxLength - inputTokens
	if room <= 0 {
		return b, fmt.Errorf("%w: prompt has %d tokens, effective max length is %d", ErrBudgetExhausted, inputTokens, b.EffectiveMaxLength)
	}
	b.MaxNewTokens = room
	if requested > 0 && requested < room {
		b.MaxNewTokens = requested
	}
	return b, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
