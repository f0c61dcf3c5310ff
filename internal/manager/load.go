package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"chatd/internal/backend"
	"chatd/internal/budget"
	"chatd/internal/memory"
	"chatd/internal/quant"
	"chatd/internal/registry"
	"chatd/internal/tokenizer"
)

// Load runs the load sequence once: tokenizer, pad token, static max length,
// device, backend, quantization, inference mode. On success the session is
// published as ready; on any failure the state becomes failed and the error
// is returned. A second call, or a call after Close, returns an error
// without side effects.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if st := m.State(); st != StateUnloaded {
		m.mu.Unlock()
		return fmt.Errorf("load: session already %s", st)
	}
	m.state.Store(StateLoading)
	m.mu.Unlock()
	setStateGauge(StateLoading)

	start := time.Now()
	m.publish(EventLoadStart, map[string]any{"path": m.cfg.ModelPath})
	m.log.Info().Str("path", m.cfg.ModelPath).Msg("loading model")

	s, err := m.load(ctx)
	if err != nil {
		m.mu.Lock()
		m.err = err.Error()
		if m.State() != StateClosed {
			m.state.Store(StateFailed)
			setStateGauge(StateFailed)
		}
		m.mu.Unlock()
		m.publish(EventLoadFailed, map[string]any{"error": err.Error()})
		m.log.Error().Err(err).Str("path", m.cfg.ModelPath).Msg("model load failed")
		return err
	}
	s.LoadedAt = time.Now()
	s.LoadDuration = time.Since(start)

	m.mu.Lock()
	if m.State() == StateClosed {
		m.mu.Unlock()
		_ = s.Model.Close()
		return errors.New("load: manager closed")
	}
	m.session.Store(s)
	m.state.Store(StateReady)
	m.mu.Unlock()
	setStateGauge(StateReady)
	modelBytes.Set(float64(s.ModelBytes))
	loadDuration.Set(s.LoadDuration.Seconds())
	m.publish(EventLoadReady, map[string]any{"device": string(s.Device), "duration_ms": s.LoadDuration.Milliseconds()})
	m.log.Info().
		Str("backend", s.Backend).
		Str("device", string(s.Device)).
		Str("dtype", s.Model.DType().String()).
		Int("max_length", s.MaxLength).
		Int64("model_bytes", s.ModelBytes).
		Dur("took", s.LoadDuration).
		Msg("model ready")
	return nil
}

func (m *Manager) load(ctx context.Context) (*Session, error) {
	mdl, err := registry.Detect(m.cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	name := mdl.Backend
	if m.cfg.Backend != "" && m.cfg.Backend != BackendAuto {
		name = m.cfg.Backend
	}
	loader, ok := m.loaders[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	tokDir := mdl.Path
	if name == registry.BackendLlama {
		tokDir = filepath.Dir(mdl.Path)
	}

	tok, err := tokenizer.Load(tokDir)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	if tok.FallbackReason != "" {
		m.log.Warn().Str("reason", tok.FallbackReason).Msg("fast tokenizer unavailable, using slow tokenizer")
	}
	if tok.Pad() < 0 {
		tok.SetPad(tok.EOS())
	}
	maxLen := budget.StaticMaxLength(tok.ModelMaxLength())
	m.publish(EventTokenizerLoaded, map[string]any{"kind": string(tok.Kind()), "max_length": maxLen})
	m.log.Info().Str("kind", string(tok.Kind())).Int("model_max_length", maxLen).Msg("tokenizer loaded")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev := detectDevice(m.cfg.Device)
	model, err := loader.Load(mdl.Path, backend.LoadOptions{
		Device:      dev,
		Threads:     m.cfg.Threads,
		ContextSize: m.cfg.ContextSize,
		Logger:      m.log,
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			return nil, ErrDependencyUnavailable(err.Error())
		}
		return nil, fmt.Errorf("model: %w", err)
	}
	m.publish(EventModelLoaded, map[string]any{"backend": name, "device": string(dev), "dtype": model.DType().String()})

	rep := quant.Apply(model, string(dev), quant.Options{
		Enabled:  m.cfg.EnableDynamicInt8,
		Safe:     m.cfg.SafeQuant,
		Headroom: m.cfg.QuantHeadroom,
		Probe:    m.cfg.MemoryProbe,
		Logger:   m.log,
	})
	m.publish(EventQuantized, map[string]any{"mode": string(rep.Plan.Mode), "quantized": rep.Quantized, "failed": rep.Failed})

	model.Eval()

	return &Session{
		Path:          mdl.Path,
		Backend:       name,
		Tokenizer:     tok,
		Model:         model,
		Device:        dev,
		MaxLength:     maxLen,
		PositionLimit: model.PositionLimit(),
		ModelBytes:    memory.EstimateModelBytes(model.Graph()),
		Quant:         rep,
	}, nil
}
