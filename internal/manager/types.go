package manager

import (
	"time"

	"chatd/internal/backend"
	"chatd/internal/quant"
	"chatd/internal/tokenizer"
)

// State is the lifecycle state of the model session.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	StateClosed   State = "closed"
)

// Session is the loaded model. It is built once by Load, published
// atomically and never mutated afterwards.
type Session struct {
	Path      string
	Backend   string
	Tokenizer *tokenizer.Tokenizer
	Model     backend.Model
	Device    backend.Device
	// MaxLength is the tokenizer limit clamped to the recommended range.
	MaxLength     int
	PositionLimit int
	ModelBytes    int64
	Quant         quant.Report
	LoadedAt      time.Time
	LoadDuration  time.Duration
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State   State
	Session *Session
	Err     string
}
