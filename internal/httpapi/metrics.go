package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestLabels = []string{"path", "method", "status"}

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, requestLabels)

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inferd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, requestLabels)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inferd",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served.",
	})

	backpressureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "http",
		Name:      "backpressure_total",
		Help:      "Updates refused because the queue was full or closing.",
	}, []string{"reason"})

	httpUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "http",
		Name:      "updates_total",
		Help:      "Updates posted to /v1/updates by routing outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal, httpUpdatesTotal)
}

// MetricsMiddleware instruments requests for Prometheus. Mounted with Use on
// a chi router, the route pattern is resolved by the time the handler returns.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInflight.Inc()
		defer httpInflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{routePattern(r), r.Method, strconv.Itoa(status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded: unmatched paths collapse
// into a single value instead of leaking raw URLs.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// IncrementBackpressure counts an update refused with 429 or 503.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

func observeUpdate(outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	httpUpdatesTotal.WithLabelValues(outcome).Inc()
}
