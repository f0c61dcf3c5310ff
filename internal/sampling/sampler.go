// Package sampling picks the next token from a logit vector.
package sampling

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Config holds decoding parameters. Temperature 0 selects greedy decoding.
type Config struct {
	Temperature       float64
	TopK              int
	TopP              float64
	RepetitionPenalty float64
	NoRepeatNGram     int
	Seed              int64
}

// Defaults used by the chat service.
var Defaults = Config{
	Temperature:       0.7,
	TopK:              50,
	TopP:              0.95,
	RepetitionPenalty: 1.1,
	NoRepeatNGram:     3,
}

type Sampler struct {
	Config Config
	rng    *rand.Rand
}

func New(cfg Config) *Sampler {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Sampler{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

type tokenProb struct {
	id   int
	prob float64
}

// Sample returns the next token id. history holds every token seen so far
// (prompt included). logits is modified in place.
func (s *Sampler) Sample(logits []float32, history []int) int {
	if s.Config.RepetitionPenalty > 1.0 && len(history) > 0 {
		applyRepetitionPenalty(logits, history, float32(s.Config.RepetitionPenalty))
	}
	if s.Config.NoRepeatNGram > 0 {
		banNGrams(logits, history, s.Config.NoRepeatNGram)
	}

	if s.Config.Temperature <= 0 {
		return argMax(logits)
	}

	probs := softmax(logits, s.Config.Temperature)
	candidates := make([]tokenProb, 0, len(probs))
	for i, p := range probs {
		if p > 0 && !math.IsNaN(p) {
			candidates = append(candidates, tokenProb{id: i, prob: p})
		}
	}
	if len(candidates) == 0 {
		return argMax(logits)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].prob > candidates[j].prob
	})
	candidates = applyTopK(candidates, s.Config.TopK)
	candidates = applyTopP(candidates, s.Config.TopP)

	sum := 0.0
	for _, c := range candidates {
		sum += c.prob
	}
	r := s.rng.Float64() * sum
	acc := 0.0
	for _, c := range candidates {
		acc += c.prob
		if r < acc {
			return c.id
		}
	}
	return candidates[0].id
}

func applyRepetitionPenalty(logits []float32, history []int, penalty float32) {
	seen := make(map[int]bool, len(history))
	for _, id := range history {
		if id < 0 || id >= len(logits) || seen[id] {
			continue
		}
		seen[id] = true
		if logits[id] > 0 {
			logits[id] /= penalty
		} else {
			logits[id] *= penalty
		}
	}
}

// banNGrams forbids any token that would complete an n-gram already present
// in history.
func banNGrams(logits []float32, history []int, n int) {
	if len(history) < n {
		return
	}
	prefix := history[len(history)-(n-1):]
	for i := 0; i+n <= len(history); i++ {
		match := true
		for j := 0; j < n-1; j++ {
			if history[i+j] != prefix[j] {
				match = false
				break
			}
		}
		if match {
			if id := history[i+n-1]; id >= 0 && id < len(logits) {
				logits[id] = float32(math.Inf(-1))
			}
		}
	}
}

func softmax(logits []float32, temperature float64) []float64 {
	probs := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, v := range logits {
		probs[i] = float64(v) / temperature
		if probs[i] > maxVal {
			maxVal = probs[i]
		}
	}
	sum := 0.0
	for i := range probs {
		probs[i] = math.Exp(probs[i] - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func applyTopK(c []tokenProb, k int) []tokenProb {
	if k <= 0 || k >= len(c) {
		return c
	}
	return c[:k]
}

func applyTopP(c []tokenProb, p float64) []tokenProb {
	if p <= 0 || p >= 1 {
		return c
	}
	acc := 0.0
	for i, t := range c {
		acc += t.prob
		if acc >= p {
			return c[:i+1]
		}
	}
	return c
}

func argMax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] || math.IsNaN(float64(logits[best])) {
			best = i
		}
	}
	return best
}
