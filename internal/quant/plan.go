// Package quant converts the dense layers of a CPU-resident model graph to
// dynamic int8, either one layer at a time or in a single pass, after
// checking that the host has room for the transient copies.
package quant

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"chatd/internal/memory"
)

// Mode is the execution strategy chosen by the planner.
type Mode string

const (
	ModeSafeLayerwise Mode = "safe_layerwise"
	ModeBulk          Mode = "bulk"
	ModeSkipped       Mode = "skipped"
)

// DefaultHeadroom is the multiple of the model size that must be available
// before conversion starts.
const DefaultHeadroom = 1.2

// Options configure planning and execution.
type Options struct {
	Enabled  bool
	Safe     bool
	Headroom float64
	Probe    memory.Probe
	// Arch overrides runtime.GOARCH for engine selection.
	Arch   string
	Logger *zerolog.Logger

	// convert replaces nn.QuantizeWeights in tests.
	convert convertFunc
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	l := zerolog.Nop()
	return &l
}

// Plan is the immutable outcome of the planning step.
type Plan struct {
	Mode           Mode   `json:"mode"`
	Reason         string `json:"reason,omitempty"`
	Engine         Engine `json:"engine,omitempty"`
	EstimatedBytes int64  `json:"estimated_bytes"`
	AvailableBytes int64  `json:"available_bytes,omitempty"`
	MemoryKnown    bool   `json:"memory_known"`
}

// Skipped reports whether the plan performs no conversion.
func (p Plan) Skipped() bool { return p.Mode == ModeSkipped }

// PlanFor decides whether and how to quantize a model of estimatedBytes on
// the given device ("cpu" or "gpu").
func PlanFor(device string, estimatedBytes int64, opts Options) Plan {
	log := opts.logger()
	p := Plan{EstimatedBytes: estimatedBytes}
	if device == "gpu" {
		p.Mode, p.Reason = ModeSkipped, "gpu device"
		return p
	}
	if !opts.Enabled {
		p.Mode, p.Reason = ModeSkipped, "disabled by configuration"
		return p
	}

	arch := opts.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}
	eng, err := SelectEngine(arch)
	if err != nil {
		log.Warn().Err(err).Str("arch", arch).Msg("quantized engine selection failed, using backend default")
		eng = EngineDefault
	}
	p.Engine = eng

	headroom := opts.Headroom
	if headroom <= 0 {
		headroom = DefaultHeadroom
	}
	probe := opts.Probe
	if probe == nil {
		probe = memory.System()
	}
	avail, err := probe.AvailableBytes()
	switch {
	case err == nil:
		p.MemoryKnown = true
		p.AvailableBytes = avail
		threshold := int64(float64(estimatedBytes) * headroom)
		if avail < threshold {
			p.Mode = ModeSkipped
			p.Reason = fmt.Sprintf("insufficient memory headroom: available %d < required %d (%.1fx model)", avail, threshold, headroom)
			return p
		}
	case errors.Is(err, memory.ErrUnavailable):
		log.Info().Msg("available memory unknown, proceeding with quantization")
	default:
		log.Warn().Err(err).Msg("memory probe failed, proceeding with quantization")
	}

	if opts.Safe {
		p.Mode = ModeSafeLayerwise
	} else {
		p.Mode = ModeBulk
	}
	return p
}
