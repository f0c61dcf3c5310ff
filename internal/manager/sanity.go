package manager

import (
	"errors"
	"path/filepath"
	"runtime"
	"strconv"

	"chatd/internal/backend/llamacpp"
	"chatd/internal/common/fsutil"
	"chatd/internal/memory"
	"chatd/internal/quant"
	"chatd/internal/registry"
	"chatd/internal/tokenizer"
)

// Check is one named sanity check result.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// SanityReport describes runtime checks for the configured model and host.
type SanityReport struct {
	Backend string  `json:"backend,omitempty"`
	Device  string  `json:"device"`
	Checks  []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r SanityReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// SanityCheck validates the model path, tokenizer files, backend
// availability and host memory reporting without loading anything. It does
// not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{Device: string(detectDevice(m.cfg.Device))}
	add := func(name string, ok bool, detail string) {
		r.Checks = append(r.Checks, Check{Name: name, OK: ok, Detail: detail})
	}

	mdl, err := registry.Detect(m.cfg.ModelPath)
	if err != nil {
		add("model_path", false, err.Error())
		return r
	}
	add("model_path", true, mdl.Path)
	r.Backend = mdl.Backend
	if m.cfg.Backend != "" && m.cfg.Backend != BackendAuto {
		r.Backend = m.cfg.Backend
	}

	if r.Backend == registry.BackendLlama {
		if llamacpp.Built {
			add("llama_runtime", true, "")
		} else {
			add("llama_runtime", false, "binary built without -tags llama")
		}
	}

	tokDir := mdl.Path
	if mdl.Backend == registry.BackendLlama {
		tokDir = filepath.Dir(mdl.Path)
	}
	fast := fsutil.IsFile(filepath.Join(tokDir, tokenizer.FastFile))
	slow := fsutil.IsFile(filepath.Join(tokDir, tokenizer.SlowFile))
	switch {
	case fast:
		add("tokenizer", true, tokenizer.FastFile)
	case slow:
		add("tokenizer", true, tokenizer.SlowFile+" (slow)")
	default:
		add("tokenizer", false, "no "+tokenizer.FastFile+" or "+tokenizer.SlowFile+" in "+tokDir)
	}

	if avail, err := m.cfg.MemoryProbe.AvailableBytes(); err != nil {
		detail := err.Error()
		if errors.Is(err, memory.ErrUnavailable) {
			detail = "unknown, quantization proceeds optimistically"
		}
		add("memory", true, detail)
	} else {
		add("memory", true, formatBytes(avail)+" available")
	}

	if eng, err := quant.SelectEngine(runtime.GOARCH); err != nil {
		add("quant_engine", true, string(quant.EngineDefault)+": "+err.Error())
	} else {
		add("quant_engine", true, string(eng))
	}
	return r
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatInt(n/div, 10) + " " + string("KMGTPE"[exp]) + "iB"
}
