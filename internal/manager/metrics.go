package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	backendState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "backend",
			Name:      "state",
			Help:      "Current backend lifecycle state (1 for the active state)",
		},
		[]string{"state"},
	)

	backendRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "backend",
			Name:      "restarts_total",
			Help:      "Total backend restarts scheduled by the supervisor",
		},
	)

	backendPulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "backend",
			Name:      "pulls_total",
			Help:      "Model pulls by result",
		},
		[]string{"result"},
	)

	backendHealthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "backend",
			Name:      "health_failures_total",
			Help:      "Failed liveness checks while supervising a ready backend",
		},
	)
)

func init() {
	prometheus.MustRegister(backendState, backendRestarts, backendPulls, backendHealthFailures)
}

func observeState(s BackendState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		backendState.WithLabelValues(string(st)).Set(v)
	}
}
