// Package metrics defines the Prometheus collectors exported by the daemon.
// A nil *Metrics is valid and records nothing, so callers never need to guard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dball"

// Metrics groups every collector the daemon updates.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	decodeErrors      prometheus.Counter
	broadcastSkipped  prometheus.Counter
	eventsSent        prometheus.Counter
	rateLimitWait     *prometheus.HistogramVec
	providerRequests  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "connections_active",
			Help:      "Client connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "connections_total",
			Help:      "Client connections accepted.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "requests_total",
			Help:      "Requests dispatched, by operation and outcome.",
		}, []string{"operation", "success"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "request_duration_seconds",
			Help:      "Request dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "decode_errors_total",
			Help:      "Connections closed because a frame failed to decode.",
		}),
		broadcastSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "broadcast_skipped_total",
			Help:      "State events dropped for lagging sessions.",
		}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "events_sent_total",
			Help:      "State events written to subscribed sessions.",
		}),
		rateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time calls spent waiting for a provider slot.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
	m.registry.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.requests,
		m.requestDuration,
		m.decodeErrors,
		m.broadcastSkipped,
		m.eventsSent,
		m.rateLimitWait,
		m.providerRequests,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// RequestHandled records one dispatched operation.
func (m *Metrics) RequestHandled(operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) BroadcastSkipped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.broadcastSkipped.Add(float64(n))
}

func (m *Metrics) EventSent() {
	if m == nil {
		return
	}
	m.eventsSent.Inc()
}

// RateLimitWait records how long a call waited for its provider slot.
func (m *Metrics) RateLimitWait(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.WithLabelValues(provider).Observe(d.Seconds())
}

// ProviderRequest records one provider call outcome ("ok", "rejected",
// "not_found", "error").
func (m *Metrics) ProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
}
