//go:build !llama

package llamacpp

import (
	"fmt"

	"chatd/internal/backend"
)

// Built reports whether the llama.cpp runtime is linked into this binary.
const Built = false

// Loader refuses to load without the llama build tag, keeping default
// builds CGO-free.
type Loader struct{}

func (Loader) Load(path string, _ backend.LoadOptions) (backend.Model, error) {
	return nil, fmt.Errorf("%s: %w (rebuild with -tags llama)", path, backend.ErrUnavailable)
}
