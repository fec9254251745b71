package manager

import (
	"time"

	"inferd/pkg/types"
)

// Status builds the backend section of /status.
func (m *Manager) Status() types.BackendStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := types.BackendStatus{
		State:              string(m.state),
		ActiveModel:        m.active,
		Fallback:           m.fallback,
		URL:                m.cfg.URL,
		Restarts:           m.restarts,
		ConsecutiveCrashes: m.crashes,
		LastError:          m.lastErr,
	}
	if m.proc != nil {
		st.PID = m.proc.Pid()
	}
	if (m.state == StateReady || m.state == StateDegraded) && !m.readySince.IsZero() {
		st.UptimeSeconds = int64(time.Since(m.readySince) / time.Second)
	}
	return st
}
