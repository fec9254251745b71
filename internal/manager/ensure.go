package manager

import (
	"context"
	"fmt"

	"inferd/internal/config"
	"inferd/internal/ollama"
)

// EnsureModel provisions the first usable model of the fallback chain, in
// declared order: a candidate already in the local inventory wins
// immediately, otherwise it is pulled. ModelProvisionFailed is returned only
// after every candidate failed.
func (m *Manager) EnsureModel(ctx context.Context, spec config.ModelSpec) (string, error) {
	chain := spec.Chain()
	if len(chain) == 0 {
		return "", &ModelProvisionFailedError{}
	}
	m.setState(StatePullingModel)

	inventory, err := m.cfg.Backend.ListModels(ctx)
	if err != nil {
		// Treat every candidate as absent; a pull is still worth attempting.
		m.log.Warn().Err(err).Msg("listing local models failed")
		inventory = nil
	}

	errs := make([]error, 0, len(chain))
	for i, name := range chain {
		if ollama.HasModel(inventory, name) {
			m.log.Info().Str("model", name).Msg("model present")
			m.activate(name, i > 0)
			return name, nil
		}
		if err := m.pull(ctx, name); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		m.activate(name, i > 0)
		return name, nil
	}
	err = &ModelProvisionFailedError{Candidates: chain, Errs: errs}
	m.setLastError(err)
	return "", err
}

func (m *Manager) pull(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PullTimeout)
	defer cancel()

	log := m.log.With().Str("model", name).Logger()
	log.Info().Msg("pulling model")
	m.pub.Publish(Event{Name: EventPullStart, Model: name})

	lastStatus := ""
	err := m.cfg.Backend.PullModel(ctx, name, func(p ollama.PullProgress) {
		if p.Status != lastStatus {
			lastStatus = p.Status
			log.Debug().Str("status", p.Status).Int64("completed", p.Completed).Int64("total", p.Total).Msg("pull progress")
		}
	})
	if err != nil {
		backendPulls.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("pull failed")
		m.pub.Publish(Event{Name: EventPullFailed, Model: name, Fields: map[string]any{"error": err.Error()}})
		return err
	}
	backendPulls.WithLabelValues("success").Inc()
	log.Info().Msg("pull complete")
	m.pub.Publish(Event{Name: EventPullDone, Model: name})
	return nil
}

func (m *Manager) activate(name string, fallback bool) {
	m.mu.Lock()
	m.active = name
	m.fallback = fallback
	m.mu.Unlock()
	if fallback {
		m.log.Warn().Str("model", name).Msg("serving fallback model")
	}
}
