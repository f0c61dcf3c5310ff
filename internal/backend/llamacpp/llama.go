//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"os"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"chatd/internal/backend"
	"chatd/internal/nn"
)

// Built reports whether the llama.cpp runtime is linked into this binary.
const Built = true

// Loader opens GGUF checkpoints through llama.cpp.
type Loader struct{}

type model struct {
	llm     *llama.LLama
	root    *nn.Container
	threads int
	ctxSize int
	gpu     bool
}

var _ backend.Model = (*model)(nil)

func (Loader) Load(path string, opts backend.LoadOptions) (backend.Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	ctxSize := opts.ContextSize
	if ctxSize <= 0 {
		ctxSize = DefaultContextSize
	}
	mo := []llama.ModelOption{llama.SetContext(ctxSize)}
	if opts.Device == backend.GPU {
		mo = append(mo, llama.SetGPULayers(gpuLayers), llama.EnableF16Memory)
	}
	l, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &model{
		llm:     l,
		root:    graphFor(path, st.Size()),
		threads: opts.Threads,
		ctxSize: ctxSize,
		gpu:     opts.Device == backend.GPU,
	}, nil
}

func (m *model) Graph() *nn.Container     { return m.root }
func (m *model) SetGraph(c *nn.Container) { m.root = c }
func (m *model) PositionLimit() int       { return m.ctxSize }
func (m *model) Eval()                    {}

func (m *model) DType() nn.DType {
	if m.gpu {
		return nn.F16
	}
	return nn.U8
}

// Generate runs llama.cpp on promptText. The prompt ids are echoed first so
// downstream consumers see the same stream shape as the native runtime.
func (m *model) Generate(ctx context.Context, prompt []int, promptText string, opts backend.GenerateOptions, sink backend.Sink) (backend.Output, error) {
	if m.llm == nil {
		return backend.Output{}, errors.New("llama model not initialized")
	}
	if sink != nil && len(prompt) > 0 {
		if err := sink.PutTokens(prompt...); err != nil {
			return backend.Output{}, err
		}
	}
	var sinkErr error
	pieces := 0
	m.llm.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		pieces++
		if sink != nil {
			if err := sink.PutText(tok); err != nil {
				sinkErr = err
				return false
			}
		}
		return true
	})
	text, err := m.llm.Predict(promptText, predictOptions(opts, m.threads)...)
	if ctx.Err() != nil {
		return backend.Output{}, ctx.Err()
	}
	if sinkErr != nil {
		return backend.Output{}, sinkErr
	}
	if err != nil {
		return backend.Output{}, err
	}
	out := backend.Output{Text: text, FinishReason: backend.FinishStop}
	if pieces >= opts.MaxNewTokens {
		out.FinishReason = backend.FinishLength
	}
	return out, nil
}

func (m *model) Close() error {
	if m.llm != nil {
		m.llm.Free()
		m.llm = nil
	}
	return nil
}

func predictOptions(opts backend.GenerateOptions, threads int) []llama.PredictOption {
	s := opts.Sampling
	po := []llama.PredictOption{
		llama.SetTokens(max(1, opts.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(float32(s.TopP)),
		llama.SetTopK(s.TopK),
		llama.SetTemperature(float32(s.Temperature)),
		llama.SetPenalty(float32(s.RepetitionPenalty)),
	}
	if s.Seed != 0 {
		po = append(po, llama.SetSeed(int(s.Seed)))
	}
	return po
}
