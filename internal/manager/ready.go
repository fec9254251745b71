package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errExited = errors.New("backend process exited")

// WaitUntilReady polls the liveness check until it succeeds, the timeout
// elapses, or the configured attempt count is spent. A backend that fails K
// checks and then answers is ready after exactly K+1 checks. If the managed
// process exits while waiting, it fails immediately with its stderr tail.
func (m *Manager) WaitUntilReady(ctx context.Context, timeout, pollInterval time.Duration) error {
	if timeout <= 0 {
		timeout = m.cfg.ReadyTimeout
	}
	if pollInterval <= 0 {
		pollInterval = m.cfg.ReadyPollInterval
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := m.process()
	var exited <-chan struct{}
	if p != nil {
		exited = p.Done()
		go func() {
			select {
			case <-exited:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	attempts := 0
	check := func() error {
		select {
		case <-exited:
			return backoff.Permanent(errExited)
		default:
		}
		attempts++
		return m.cfg.Backend.Ping(ctx)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pollInterval), uint64(m.cfg.ReadyAttempts-1)),
		ctx,
	)
	err := backoff.Retry(check, policy)
	if err == nil {
		m.log.Info().Int("attempts", attempts).Msg("backend answering")
		return nil
	}

	if p != nil && isClosed(exited) {
		return &BackendUnavailableError{Reason: "exited before ready", Tail: p.StderrTail(), Err: p.Err()}
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	tail := ""
	if p != nil {
		tail = p.StderrTail()
	}
	if ctx.Err() != nil {
		return &BackendUnavailableError{Reason: fmt.Sprintf("not ready within %s after %d checks", timeout, attempts), Tail: tail, Err: err}
	}
	return &BackendUnavailableError{Reason: fmt.Sprintf("not ready after %d checks", attempts), Tail: tail, Err: err}
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
