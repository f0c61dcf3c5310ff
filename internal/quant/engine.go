package quant

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// Engine names the int8 kernel family the weights are laid out for.
type Engine string

const (
	// EngineFBGEMM targets x86 with AVX2 and uses per-channel weight scales.
	EngineFBGEMM Engine = "fbgemm"
	// EngineQNNPACK targets ARM and uses a single per-tensor scale.
	EngineQNNPACK Engine = "qnnpack"
	// EngineDefault is used when no engine matches the host.
	EngineDefault Engine = "default"
)

// SelectEngine picks the engine for the given GOARCH.
func SelectEngine(arch string) (Engine, error) {
	switch arch {
	case "amd64", "386":
		if !cpu.X86.HasAVX2 {
			return "", fmt.Errorf("x86 host without AVX2")
		}
		return EngineFBGEMM, nil
	case "arm64":
		if !cpu.ARM64.HasASIMD {
			return "", fmt.Errorf("arm64 host without ASIMD")
		}
		return EngineQNNPACK, nil
	default:
		return "", fmt.Errorf("no quantized engine for %s", arch)
	}
}

// PerChannel reports whether weights get one scale per output channel.
func (e Engine) PerChannel() bool { return e == EngineFBGEMM }
