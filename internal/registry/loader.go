// Package registry finds servable checkpoints on disk and decides which
// backend handles each one.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"chatd/internal/backend/llamacpp"
	"chatd/internal/backend/native"
	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// Backend names.
const (
	BackendNative = "native"
	BackendLlama  = "llama"
)

// Detect classifies a single model path: a directory holding a native
// checkpoint or a GGUF file.
func Detect(path string) (types.Model, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return types.Model{}, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return types.Model{}, fmt.Errorf("abs path: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return types.Model{}, err
	}
	m := types.Model{ID: filepath.Base(abs), Path: abs}
	switch {
	case st.IsDir() && native.IsModelDir(abs):
		m.Backend = BackendNative
		m.SizeBytes = fsutil.DirSize(abs)
	case !st.IsDir() && llamacpp.IsModelFile(abs):
		m.Backend = BackendLlama
		m.SizeBytes = st.Size()
	default:
		return types.Model{}, fmt.Errorf("%s: not a model directory or .gguf file", abs)
	}
	return m, nil
}

// LoadDir scans dir (non-recursively) for model directories and *.gguf
// files. Entries that are neither are ignored.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		m, err := Detect(filepath.Join(abs, e.Name()))
		if err != nil {
			continue
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
