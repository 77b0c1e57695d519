// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all gateway metrics. Each gateway instance owns its own
// Prometheus registry so tests can build several gateways in one process.
type Registry struct {
	reg *prometheus.Registry

	FramesReceived   prometheus.Counter
	FramesDispatched prometheus.Counter
	FramesDropped    prometheus.Counter

	ActiveSubscriptions prometheus.Gauge
	ActiveStreamClients prometheus.Gauge

	RequestDuration *prometheus.HistogramVec
	UpstreamCalls   *prometheus.CounterVec
	OrdersPlaced    *prometheus.CounterVec
}

// New creates a registry with all gateway metrics registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantgate_frames_received_total",
			Help: "Quote frames received from the upstream adapter",
		}),
		FramesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantgate_frames_dispatched_total",
			Help: "Quote frames enqueued to subscriber queues",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantgate_frames_dropped_total",
			Help: "Quote frames evicted from full subscriber queues",
		}),

		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantgate_subscriptions_active",
			Help: "Currently registered quote subscriptions",
		}),
		ActiveStreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantgate_stream_clients_active",
			Help: "Currently connected websocket stream clients",
		}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantgate_request_duration_seconds",
			Help:    "Request handling time by surface and operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"surface", "operation", "code"}),

		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantgate_upstream_calls_total",
			Help: "Calls into the upstream adapter by operation and outcome",
		}, []string{"operation", "outcome"}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantgate_orders_total",
			Help: "Order placements by mode and whether they were simulated",
		}, []string{"mode", "simulated"}),
	}

	r.reg.MustRegister(
		r.FramesReceived,
		r.FramesDispatched,
		r.FramesDropped,
		r.ActiveSubscriptions,
		r.ActiveStreamClients,
		r.RequestDuration,
		r.UpstreamCalls,
		r.OrdersPlaced,
	)

	return r
}

// ObserveRequest records one handled request.
func (r *Registry) ObserveRequest(surface, operation, code string, seconds float64) {
	r.RequestDuration.WithLabelValues(surface, operation, code).Observe(seconds)
}

// RecordUpstreamCall counts one adapter call outcome ("ok" or "error").
func (r *Registry) RecordUpstreamCall(operation, outcome string) {
	r.UpstreamCalls.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
