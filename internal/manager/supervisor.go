package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Run supervises the backend until ctx is cancelled: launch, wait for
// readiness, provision the model, then monitor. An unexpected exit or a
// failure in any of those steps counts as a crash and triggers a relaunch
// after the restart backoff. Run returns a CrashBudgetExhausted error once
// more than MaxConsecutiveCrashes crashes happened without an intervening
// stable period, and nil on cancellation.
func (m *Manager) Run(ctx context.Context) error {
	cycle := func() error {
		err := m.cycle(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if fatal := m.recordCrash(err); fatal != nil {
			return backoff.Permanent(fatal)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.mu.Lock()
		m.restarts++
		m.mu.Unlock()
		backendRestarts.Inc()
		m.log.Info().Dur("backoff", wait).Msg("restarting backend")
		m.publish(EventRestart, map[string]any{"backoff": wait.String()})
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(m.cfg.RestartBackoff), ctx)
	err := backoff.RetryNotify(cycle, policy, notify)

	_ = m.Stop()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// cycle runs one launch-to-crash lifetime of the backend. It never returns nil.
func (m *Manager) cycle(ctx context.Context) error {
	m.setState(StateStarting)
	if err := m.Start(ctx); err != nil {
		return err
	}
	if err := m.WaitUntilReady(ctx, m.cfg.ReadyTimeout, m.cfg.ReadyPollInterval); err != nil {
		_ = m.Stop()
		return err
	}
	if _, err := m.EnsureModel(ctx, m.cfg.Models); err != nil {
		_ = m.Stop()
		return err
	}
	m.setState(StateReady)
	m.publish(EventReady, nil)
	return m.monitor(ctx)
}

// monitor watches a ready backend for process exit and failed health checks.
func (m *Manager) monitor(ctx context.Context) error {
	p := m.process()
	var exited <-chan struct{}
	if p != nil {
		exited = p.Done()
	}
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	stable := time.NewTimer(m.cfg.StableAfter)
	defer stable.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return &BackendUnavailableError{Reason: "process exited", Tail: p.StderrTail(), Err: p.Err()}
		case <-stable.C:
			m.resetCrashes()
		case <-ticker.C:
			err := m.cfg.Backend.Ping(ctx)
			if err == nil {
				if failures > 0 {
					failures = 0
					m.setState(StateReady)
					stable.Reset(m.cfg.StableAfter)
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			backendHealthFailures.Inc()
			m.log.Warn().Err(err).Int("failures", failures).Msg("health check failed")
			if failures == 1 {
				stable.Stop()
				m.setState(StateDegraded)
				m.publish(EventDegraded, map[string]any{"error": err.Error()})
			}
			if failures >= m.cfg.DegradedThreshold {
				_ = m.Stop()
				return &BackendUnavailableError{Reason: fmt.Sprintf("%d consecutive health checks failed", failures), Err: err}
			}
		}
	}
}

// recordCrash moves to Crashed and returns the fatal error once the budget is spent.
func (m *Manager) recordCrash(cause error) error {
	m.setState(StateCrashed)
	m.setLastError(cause)
	m.mu.Lock()
	m.crashes++
	crashes := m.crashes
	m.mu.Unlock()

	m.log.Error().Err(cause).Int("consecutive_crashes", crashes).Msg("backend crashed")
	m.publish(EventCrash, map[string]any{"error": cause.Error(), "consecutive": crashes})
	if crashes > m.cfg.MaxConsecutiveCrashes {
		fatal := &CrashBudgetExhaustedError{Crashes: crashes, Max: m.cfg.MaxConsecutiveCrashes, Last: cause}
		m.log.Error().Err(fatal).Msg("giving up on backend")
		m.publish(EventFatal, map[string]any{"error": fatal.Error()})
		return fatal
	}
	return nil
}

func (m *Manager) resetCrashes() {
	m.mu.Lock()
	n := m.crashes
	m.crashes = 0
	m.mu.Unlock()
	if n > 0 {
		m.log.Info().Int("cleared", n).Msg("backend stable, crash counter reset")
	}
}
