// Package backend defines the contract between the model session and the
// runtimes that execute a causal language model.
package backend

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"chatd/internal/nn"
	"chatd/internal/sampling"
)

// Device is where weights live and decode runs.
type Device string

const (
	CPU Device = "cpu"
	GPU Device = "gpu"
)

// ErrUnavailable is returned by runtimes that were not compiled in.
var ErrUnavailable = errors.New("backend not available in this build")

// LoadOptions are passed to a Loader.
type LoadOptions struct {
	Device      Device
	Threads     int
	ContextSize int
	Logger      *zerolog.Logger
}

// GenerateOptions control one decode run.
type GenerateOptions struct {
	MaxNewTokens int
	Sampling     sampling.Config
	EOS          int
	Pad          int
}

// Sink receives decode output in order. The prompt is echoed first through
// PutTokens, one call per prompt token batch; generated output follows.
type Sink interface {
	PutTokens(ids ...int) error
	PutText(text string) error
}

// Output is the result of a finished decode.
type Output struct {
	// IDs holds generated token ids when the runtime exposes them.
	IDs []int
	// Text holds the generated text when the runtime only exposes text.
	Text         string
	FinishReason string
}

// Finish reasons.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Model is a loaded runtime. Generate is not safe for concurrent use.
type Model interface {
	Graph() *nn.Container
	SetGraph(*nn.Container)
	DType() nn.DType
	// PositionLimit is the model's maximum sequence length, 0 when unknown.
	PositionLimit() int
	// Eval switches the model to inference mode.
	Eval()
	// Generate decodes after prompt. promptText is the same prompt rendered
	// as text for runtimes that tokenize internally. sink may be nil.
	Generate(ctx context.Context, prompt []int, promptText string, opts GenerateOptions, sink Sink) (Output, error)
	Close() error
}

// Loader opens a model from a path.
type Loader interface {
	Load(path string, opts LoadOptions) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string, opts LoadOptions) (Model, error)

func (f LoaderFunc) Load(path string, opts LoadOptions) (Model, error) { return f(path, opts) }
