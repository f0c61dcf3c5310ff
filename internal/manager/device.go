package manager

import (
	"os"
	"strings"

	"chatd/internal/backend"
	"chatd/internal/common/fsutil"
)

// nvidiaProcFile exists when the NVIDIA kernel driver is loaded.
var nvidiaProcFile = "/proc/driver/nvidia/version"

// detectDevice resolves "auto" by probing for an NVIDIA driver or an
// explicit CUDA_VISIBLE_DEVICES assignment.
func detectDevice(choice string) backend.Device {
	switch strings.ToLower(choice) {
	case DeviceCPU:
		return backend.CPU
	case DeviceGPU:
		return backend.GPU
	}
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" {
			return backend.CPU
		}
		return backend.GPU
	}
	if fsutil.PathExists(nvidiaProcFile) {
		return backend.GPU
	}
	return backend.CPU
}
