package weights

import (
	"fmt"
	"os"
	"path/filepath"

	"chatd/internal/nn"
)

// Checkpoint file names probed by Load, in order.
const (
	SafetensorsFile = "model.safetensors"
	TorchFile       = "pytorch_model.bin"
)

// Load reads the first checkpoint found in dir and returns its tensors and
// the file it came from.
func Load(dir string) (map[string]*nn.Tensor, string, error) {
	st := filepath.Join(dir, SafetensorsFile)
	if _, err := os.Stat(st); err == nil {
		ts, _, err := ReadSafetensors(st)
		return ts, st, err
	}
	pt := filepath.Join(dir, TorchFile)
	if _, err := os.Stat(pt); err == nil {
		ts, err := ReadTorch(pt)
		return ts, pt, err
	}
	return nil, "", fmt.Errorf("no %s or %s in %s", SafetensorsFile, TorchFile, dir)
}
