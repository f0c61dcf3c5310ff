//go:build !llama

package llamacpp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chatd/internal/backend"
)

func TestStubLoaderUnavailable(t *testing.T) {
	_, err := Loader{}.Load("/m/a.gguf", backend.LoadOptions{})
	assert.ErrorIs(t, err, backend.ErrUnavailable)
	assert.False(t, Built)
}
