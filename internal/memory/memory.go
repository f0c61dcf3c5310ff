// Package memory estimates the resident size of a module graph and reports
// how much memory the host can still give us.
package memory

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"

	"chatd/internal/nn"
)

// ErrUnavailable means the host offers no way to read available memory.
// It is not the same as "zero bytes free".
var ErrUnavailable = errors.New("available memory unknown")

// EstimateModelBytes sums numel*element_size over every parameter and buffer
// in the graph. Tensors that share storage are counted once per owner.
func EstimateModelBytes(root nn.Module) int64 {
	var total int64
	nn.Walk(root, func(_ string, m nn.Module) bool {
		for _, t := range m.Parameters() {
			total += t.NBytes()
		}
		for _, t := range m.Buffers() {
			total += t.NBytes()
		}
		return true
	})
	return total
}

// Probe reports available system memory in bytes.
type Probe interface {
	AvailableBytes() (int64, error)
}

// ProcProbe reads /proc/meminfo (or a meminfo under another mount point).
type ProcProbe struct {
	MountPoint string
}

// System returns the probe for the running host.
func System() Probe { return ProcProbe{MountPoint: procfs.DefaultMountPoint} }

func (p ProcProbe) AvailableBytes() (int64, error) {
	mp := p.MountPoint
	if mp == "" {
		mp = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if mi.MemAvailable != nil {
		return int64(*mi.MemAvailable) * 1024, nil
	}
	// Kernels before 3.14 lack MemAvailable.
	if mi.MemFree == nil {
		return 0, ErrUnavailable
	}
	kb := *mi.MemFree
	if mi.Buffers != nil {
		kb += *mi.Buffers
	}
	if mi.Cached != nil {
		kb += *mi.Cached
	}
	return int64(kb) * 1024, nil
}

// Fixed is a probe with a constant answer.
type Fixed int64

func (f Fixed) AvailableBytes() (int64, error) { return int64(f), nil }

// Unknown is a probe whose query mechanism is absent.
type Unknown struct{}

func (Unknown) AvailableBytes() (int64, error) { return 0, ErrUnavailable }
