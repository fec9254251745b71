package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "chat",
			Name:      "updates_total",
			Help:      "Inbound chat updates by routing outcome",
		},
		[]string{"outcome"},
	)

	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "chat",
			Name:      "replies_total",
			Help:      "Outbound replies by delivery result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, repliesTotal)
}
