package native

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"chatd/internal/nn"
	"chatd/internal/tokenizer"
	"chatd/internal/weights"
)

// TestModelOptions size a generated checkpoint. Zero values pick small
// defaults.
type TestModelOptions struct {
	HiddenSize       int
	IntermediateSize int
	Layers           int
	MixWindow        int
	MaxPositions     int
	// ModelMaxLength is written to tokenizer_config.json; 0 omits it.
	ModelMaxLength int
	Words          []string
	Seed           int64
	// AllowEOS lets the model emit end-of-turn. When false generation always
	// runs to the token limit.
	AllowEOS bool
	// SkipFastTokenizer leaves only the slow tokenizer files.
	SkipFastTokenizer bool
}

func (o *TestModelOptions) defaults() {
	if o.HiddenSize <= 0 {
		o.HiddenSize = 32
	}
	if o.IntermediateSize <= 0 {
		o.IntermediateSize = 64
	}
	if o.Layers <= 0 {
		o.Layers = 2
	}
	if o.MixWindow <= 0 {
		o.MixWindow = 4
	}
	if o.MaxPositions <= 0 {
		o.MaxPositions = 2048
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
}

// WriteTestModel writes a complete random model directory to dir: config,
// tokenizer files and a safetensors checkpoint. Only word tokens carry
// non-suppressed output bias, so decoded text is always valid UTF-8.
func WriteTestModel(dir string, opts TestModelOptions) (Config, error) {
	opts.defaults()
	vocab, err := tokenizer.Generate(dir, tokenizer.GenerateOptions{
		Words:          opts.Words,
		ModelMaxLength: opts.ModelMaxLength,
		SkipFast:       opts.SkipFastTokenizer,
	})
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ModelType:             ModelType,
		VocabSize:             vocab,
		HiddenSize:            opts.HiddenSize,
		IntermediateSize:      opts.IntermediateSize,
		NumHiddenLayers:       opts.Layers,
		MaxPositionEmbeddings: opts.MaxPositions,
		MixWindow:             opts.MixWindow,
		RMSNormEps:            1e-6,
		Dropout:               0.1,
		TorchDType:            "float32",
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return cfg, err
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), b, 0o644); err != nil {
		return cfg, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	normal := func(n int, std float64) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64() * std)
		}
		return out
	}
	H, I, V := cfg.HiddenSize, cfg.IntermediateSize, cfg.VocabSize

	var ts []*nn.Tensor
	ts = append(ts, nn.NewF32("model.embed_tokens.weight", normal(V*H, 1), V, H))
	mix := make([]float32, cfg.MixWindow)
	for k := range mix {
		mix[k] = float32(math.Pow(0.5, float64(k)))
	}
	ts = append(ts, nn.NewF32("model.mix", mix, cfg.MixWindow))
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		p := "model.layers." + strconv.Itoa(i) + ".mlp."
		ts = append(ts,
			nn.NewF32(p+"up_proj.weight", normal(I*H, 1/math.Sqrt(float64(H))), I, H),
			nn.NewF32(p+"up_proj.bias", make([]float32, I), I),
			nn.NewF32(p+"down_proj.weight", normal(H*I, 0.5/math.Sqrt(float64(I))), H, I),
			nn.NewF32(p+"down_proj.bias", make([]float32, H), H),
		)
	}
	gain := make([]float32, H)
	for i := range gain {
		gain[i] = 1
	}
	ts = append(ts, nn.NewF32("model.norm.weight", gain, H))
	ts = append(ts, nn.NewF32("lm_head.weight", normal(V*H, 1/math.Sqrt(float64(H))), V, H))

	bias := make([]float32, V)
	for id := 0; id < V; id++ {
		switch {
		case id == tokenizer.GeneratedEOSID && opts.AllowEOS:
			bias[id] = -1
		case id < tokenizer.FirstWordID:
			bias[id] = -1e4
		}
	}
	ts = append(ts, nn.NewF32("lm_head.bias", bias, V))

	meta := map[string]string{"format": "pt", "model_type": ModelType}
	return cfg, weights.WriteSafetensors(filepath.Join(dir, weights.SafetensorsFile), ts, meta)
}
