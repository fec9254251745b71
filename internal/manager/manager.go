package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the backend process and its BackendState.
type Manager struct {
	cfg Config
	log zerolog.Logger
	pub EventPublisher

	mu         sync.RWMutex
	state      BackendState
	proc       Process
	active     string
	fallback   bool
	restarts   uint64
	crashes    int
	lastErr    string
	readySince time.Time
}

// New constructs a Manager in the Starting state.
func New(cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "manager").Logger(),
		pub:   cfg.Publisher,
		state: StateStarting,
	}
	observeState(StateStarting)
	return m
}

// State returns the current backend state.
func (m *Manager) State() BackendState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether inference can be admitted.
func (m *Manager) Ready() bool { return m.State() == StateReady }

// ActiveModel returns the provisioned model, or "" before EnsureModel succeeds.
func (m *Manager) ActiveModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) setState(s BackendState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	if s == StateReady && prev != StateReady && prev != StateDegraded {
		m.readySince = time.Now()
	}
	m.mu.Unlock()
	if prev != s {
		observeState(s)
		m.log.Info().Str("from", string(prev)).Str("state", string(s)).Msg("backend state")
	}
}

func (m *Manager) setLastError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

func (m *Manager) publish(name string, fields map[string]any) {
	m.pub.Publish(Event{Name: name, Model: m.ActiveModel(), Fields: fields})
}

// Start launches the backend process. It is a no-op for an externally
// managed backend.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.Launcher == nil {
		return nil
	}
	p, err := m.cfg.Launcher.Launch(ctx)
	if err != nil {
		return &BackendUnavailableError{Reason: "launch failed", Err: err}
	}
	m.mu.Lock()
	m.proc = p
	m.mu.Unlock()
	m.log.Info().Int("pid", p.Pid()).Msg("backend launched")
	m.publish(EventLaunch, map[string]any{"pid": p.Pid()})
	return nil
}

// Stop terminates the managed process, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	p := m.proc
	m.proc = nil
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	m.log.Info().Int("pid", p.Pid()).Msg("stopping backend")
	return p.Stop(m.cfg.StopGrace)
}

func (m *Manager) process() Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.proc
}
