package native

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFile is the model hyper-parameter file inside a model directory.
const ConfigFile = "config.json"

// ModelType identifies checkpoints this backend understands.
const ModelType = "chatd-tiny"

// Config mirrors config.json.
type Config struct {
	ModelType             string  `json:"model_type"`
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	IntermediateSize      int     `json:"intermediate_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	MixWindow             int     `json:"mix_window"`
	RMSNormEps            float32 `json:"rms_norm_eps"`
	Dropout               float32 `json:"dropout"`
	TorchDType            string  `json:"torch_dtype,omitempty"`
}

func readConfig(dir string) (Config, error) {
	var c Config
	b, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%s: %w", ConfigFile, err)
	}
	if c.ModelType != ModelType {
		return c, fmt.Errorf("%s: unsupported model_type %q", ConfigFile, c.ModelType)
	}
	if c.VocabSize <= 0 || c.HiddenSize <= 0 || c.IntermediateSize <= 0 || c.NumHiddenLayers < 0 {
		return c, fmt.Errorf("%s: invalid dimensions", ConfigFile)
	}
	if c.MixWindow <= 0 {
		c.MixWindow = 1
	}
	if c.RMSNormEps == 0 {
		c.RMSNormEps = 1e-6
	}
	return c, nil
}

// IsModelDir reports whether dir holds a native checkpoint.
func IsModelDir(dir string) bool {
	_, err := readConfig(dir)
	return err == nil
}
