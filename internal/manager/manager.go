package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/backend"
	"chatd/internal/backend/llamacpp"
	"chatd/internal/backend/native"
	"chatd/internal/registry"
)

type Manager struct {
	cfg ManagerConfig
	log *zerolog.Logger

	state   atomic.Value // State
	session atomic.Pointer[Session]

	mu  sync.RWMutex
	err string

	loaders map[string]backend.Loader

	// Admission: genCh holds the single in-flight slot, queueCh the waiting
	// requests (including the in-flight one).
	genCh   chan struct{}
	queueCh chan struct{}

	startTime   time.Time
	generations atomic.Uint64
}

// New returns a manager for the model at path using package defaults.
func New(path string) *Manager {
	return NewWithConfig(ManagerConfig{ModelPath: path})
}

// NewWithConfig constructs a Manager from ManagerConfig. The model is not
// loaded until Load is called.
func NewWithConfig(cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		startTime: time.Now(),
		loaders: map[string]backend.Loader{
			registry.BackendNative: native.Loader{},
			registry.BackendLlama:  llamacpp.Loader{},
		},
	}
	for name, l := range cfg.Loaders {
		if l != nil {
			m.loaders[name] = l
		}
	}
	m.state.Store(StateUnloaded)
	setStateGauge(StateUnloaded)
	return m
}

// State returns the current session state.
func (m *Manager) State() State { return m.state.Load().(State) }

// Ready reports whether generation requests can be served.
func (m *Manager) Ready() bool {
	return m.State() == StateReady && m.session.Load() != nil
}

// ModelName is the served label.
func (m *Manager) ModelName() string { return m.cfg.ModelName }

// Session returns the loaded session or ErrNotReady.
func (m *Manager) Session() (*Session, error) {
	s := m.session.Load()
	if s == nil || m.State() != StateReady {
		return nil, notReadyError{state: m.State()}
	}
	return s, nil
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.State(), Session: m.session.Load(), Err: m.err}
}

// Close releases the model. The manager cannot be reused afterwards: the
// state becomes closed and Load refuses to run again.
func (m *Manager) Close() error {
	m.mu.Lock()
	s := m.session.Swap(nil)
	m.state.Store(StateClosed)
	m.mu.Unlock()
	setStateGauge(StateClosed)
	if s == nil || s.Model == nil {
		return nil
	}
	return s.Model.Close()
}

func (m *Manager) publish(name string, fields map[string]any) {
	m.cfg.Publisher.Publish(Event{Name: name, Model: m.cfg.ModelName, Time: time.Now(), Fields: fields})
}
