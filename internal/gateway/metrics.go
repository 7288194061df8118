package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Request outcomes recorded by Metrics.
const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected" // circuit breaker open
)

// Metrics holds the Prometheus collectors for gateway traffic. Each instance owns its
// registry so tests and multiple clients never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	BreakerState prometheus.Gauge
}

// NewMetrics creates gateway metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of backend requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	breakerState := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	registry.MustRegister(requests, duration, breakerState)

	return &Metrics{
		registry:     registry,
		Requests:     requests,
		Duration:     duration,
		BreakerState: breakerState,
	}
}

// Registry returns the registry holding the gateway collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
	if outcome != outcomeRejected {
		m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) setBreakerState(state gobreaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}
