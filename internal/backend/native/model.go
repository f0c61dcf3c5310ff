// Package native runs a small residual MLP language model written in Go. It
// is the reference runtime used for low-spec hosts and tests.
package native

import (
	"context"
	"fmt"
	"strconv"

	"chatd/internal/backend"
	"chatd/internal/nn"
	"chatd/internal/sampling"
	"chatd/internal/weights"
)

// Model is a loaded native checkpoint.
type Model struct {
	cfg   Config
	root  *nn.Container
	dtype nn.DType
}

var _ backend.Model = (*Model)(nil)

// Loader opens native checkpoints.
type Loader struct{}

// Load reads config.json and the checkpoint in dir. On GPU the weights are
// kept in bfloat16.
func (Loader) Load(dir string, opts backend.LoadOptions) (backend.Model, error) {
	cfg, err := readConfig(dir)
	if err != nil {
		return nil, err
	}
	ts, _, err := weights.Load(dir)
	if err != nil {
		return nil, err
	}
	dtype := nn.F32
	if opts.Device == backend.GPU {
		dtype = nn.BF16
	}
	if dtype != nn.F32 {
		for k, t := range ts {
			if t.DType != nn.F32 {
				continue
			}
			c, err := t.To(dtype)
			if err != nil {
				return nil, err
			}
			ts[k] = c
		}
	} else {
		for k, t := range ts {
			if t.DType == nn.F32 {
				continue
			}
			c, err := t.To(nn.F32)
			if err != nil {
				return nil, err
			}
			ts[k] = c
		}
	}
	root, err := buildGraph(cfg, ts)
	if err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, root: root, dtype: dtype}, nil
}

func need(ts map[string]*nn.Tensor, name string, shape ...int) (*nn.Tensor, error) {
	t, ok := ts[name]
	if !ok {
		return nil, fmt.Errorf("missing tensor %s", name)
	}
	if len(t.Shape) != len(shape) {
		return nil, fmt.Errorf("tensor %s: shape %v, want %v", name, t.Shape, shape)
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return nil, fmt.Errorf("tensor %s: shape %v, want %v", name, t.Shape, shape)
		}
	}
	return t, nil
}

func buildGraph(cfg Config, ts map[string]*nn.Tensor) (*nn.Container, error) {
	V, H, I := cfg.VocabSize, cfg.HiddenSize, cfg.IntermediateSize

	embW, err := need(ts, "model.embed_tokens.weight", V, H)
	if err != nil {
		return nil, err
	}
	emb, err := nn.NewEmbedding("embed_tokens", embW)
	if err != nil {
		return nil, err
	}
	mixW, err := need(ts, "model.mix", cfg.MixWindow)
	if err != nil {
		return nil, err
	}

	layers := nn.NewContainer("layers", "ModuleList")
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		p := "model.layers." + strconv.Itoa(i) + ".mlp."
		up, err := linear(ts, "up_proj", p+"up_proj", I, H)
		if err != nil {
			return nil, err
		}
		down, err := linear(ts, "down_proj", p+"down_proj", H, I)
		if err != nil {
			return nil, err
		}
		layers.Append(nn.NewContainer(strconv.Itoa(i), "MLPBlock",
			up, nn.NewSiLU("act_fn"), nn.NewDropout("dropout", cfg.Dropout), down))
	}

	normW, err := need(ts, "model.norm.weight", H)
	if err != nil {
		return nil, err
	}
	head, err := linear(ts, "lm_head", "lm_head", V, H)
	if err != nil {
		return nil, err
	}
	return nn.NewContainer("model", "TinyCausalLM",
		emb,
		nn.NewBuffer("mix", mixW),
		layers,
		nn.NewRMSNorm("norm", normW, cfg.RMSNormEps),
		head,
	), nil
}

func linear(ts map[string]*nn.Tensor, name, prefix string, out, in int) (*nn.Linear, error) {
	w, err := need(ts, prefix+".weight", out, in)
	if err != nil {
		return nil, err
	}
	var b *nn.Tensor
	if _, ok := ts[prefix+".bias"]; ok {
		if b, err = need(ts, prefix+".bias", out); err != nil {
			return nil, err
		}
	}
	return nn.NewLinear(name, w, b)
}

func (m *Model) Graph() *nn.Container     { return m.root }
func (m *Model) SetGraph(c *nn.Container) { m.root = c }
func (m *Model) DType() nn.DType          { return m.dtype }
func (m *Model) PositionLimit() int       { return m.cfg.MaxPositionEmbeddings }
func (m *Model) Eval()                    { nn.Eval(m.root) }
func (m *Model) Close() error             { return nil }

// Config returns the checkpoint hyper-parameters.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) child(name string) (nn.Module, error) {
	c, ok := m.root.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("graph has no %s", name)
	}
	return c, nil
}

func (m *Model) layer(name string) (nn.Layer, error) {
	c, err := m.child(name)
	if err != nil {
		return nil, err
	}
	l, ok := c.(nn.Layer)
	if !ok {
		return nil, fmt.Errorf("%s is %s, not a layer", name, c.Kind())
	}
	return l, nil
}

// Logits computes next-token logits for the sequence ids. The hidden state
// is the last token embedding mixed with a decayed window of its
// predecessors, refined by residual MLP blocks.
func (m *Model) Logits(ids []int) ([]float32, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	ec, err := m.child("embed_tokens")
	if err != nil {
		return nil, err
	}
	emb := ec.(*nn.Embedding)
	mc, err := m.child("mix")
	if err != nil {
		return nil, err
	}
	mix, err := mc.(*nn.Vector).Data.Floats()
	if err != nil {
		return nil, err
	}

	h := make([]float32, emb.Dim)
	for k := 0; k < len(mix) && k < len(ids); k++ {
		row, err := emb.Row(ids[len(ids)-1-k])
		if err != nil {
			return nil, err
		}
		for i, v := range row {
			h[i] += mix[k] * v
		}
	}

	lc, err := m.child("layers")
	if err != nil {
		return nil, err
	}
	blocks := lc.(nn.Parent)
	for b := 0; b < blocks.NumChildren(); b++ {
		blk, ok := blocks.Child(b).(nn.Parent)
		if !ok {
			return nil, fmt.Errorf("layer %d is not a block", b)
		}
		x := h
		for j := 0; j < blk.NumChildren(); j++ {
			l, ok := blk.Child(j).(nn.Layer)
			if !ok {
				continue
			}
			if x, err = l.Forward(x); err != nil {
				return nil, fmt.Errorf("layer %d: %w", b, err)
			}
		}
		for i := range h {
			h[i] += x[i]
		}
	}

	norm, err := m.layer("norm")
	if err != nil {
		return nil, err
	}
	if h, err = norm.Forward(h); err != nil {
		return nil, err
	}
	head, err := m.layer("lm_head")
	if err != nil {
		return nil, err
	}
	return head.Forward(h)
}

// Generate echoes the prompt to sink, then samples up to MaxNewTokens.
func (m *Model) Generate(ctx context.Context, prompt []int, _ string, opts backend.GenerateOptions, sink backend.Sink) (backend.Output, error) {
	out := backend.Output{FinishReason: backend.FinishLength}
	if sink != nil && len(prompt) > 0 {
		if err := sink.PutTokens(prompt...); err != nil {
			return out, err
		}
	}
	s := sampling.New(opts.Sampling)
	history := append([]int(nil), prompt...)
	for step := 0; step < opts.MaxNewTokens; step++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if m.cfg.MaxPositionEmbeddings > 0 && len(history) >= m.cfg.MaxPositionEmbeddings {
			break
		}
		logits, err := m.Logits(history)
		if err != nil {
			return out, err
		}
		id := s.Sample(logits, history)
		if id == opts.EOS || (opts.Pad >= 0 && id == opts.Pad) {
			out.FinishReason = backend.FinishStop
			break
		}
		history = append(history, id)
		out.IDs = append(out.IDs, id)
		if sink != nil {
			if err := sink.PutTokens(id); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}
