package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Jobs waiting for the inference slot",
		},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Terminal jobs by kind and status",
		},
		[]string{"kind", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Time from enqueue to terminal state",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
		},
		[]string{"kind"},
	)

	requeuesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "jobs",
			Name:      "requeues_total",
			Help:      "Jobs sent back to the queue because the backend was not ready",
		},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, jobsTotal, jobDuration, requeuesTotal)
}
