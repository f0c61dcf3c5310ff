// Package llamacpp serves GGUF checkpoints through go-llama.cpp. Weights
// stay inside the C runtime, so the graph seen by the rest of the service is
// a single opaque node sized from the file.
package llamacpp

import (
	"path/filepath"
	"strings"

	"chatd/internal/nn"
)

// DefaultContextSize is used when LoadOptions.ContextSize is unset.
const DefaultContextSize = 4096

// gpuLayers offloads every layer of any realistic model.
const gpuLayers = 99

// IsModelFile reports whether path names a GGUF checkpoint.
func IsModelFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gguf")
}

func graphFor(path string, size int64) *nn.Container {
	return nn.NewContainer("model", "LlamaCpp", nn.NewOpaque(filepath.Base(path), "GGUF", size))
}
