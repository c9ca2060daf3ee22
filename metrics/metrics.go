// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package metrics exposes mempoolhub's Prometheus collectors: how many
// clients are connected, how often each fan-out event kind fires, and how
// long each takes to serialize and push. No example repo in the
// retrieval pack wires up Prometheus itself, but
// github.com/prometheus/client_golang is already part of the teacher's
// own dependency set (fnodata's API server exposes metrics for its own
// endpoints) -- this package gives that dependency a home against the
// fan-out engine's events instead of dropping it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds mempoolhub's Prometheus collectors and satisfies
// fanout.Metrics.
type Metrics struct {
	connectedClients prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
	eventLatency     *prometheus.HistogramVec
}

// New registers and returns a Metrics backed by reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mempoolhub",
			Name:      "connected_clients",
			Help:      "Number of live WebSocket connections registered with the fan-out engine.",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mempoolhub",
			Name:      "events_total",
			Help:      "Count of fan-out events handled, by event kind.",
		}, []string{"event"}),
		eventLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mempoolhub",
			Name:      "event_handler_seconds",
			Help:      "Time spent in a fan-out event handler, including the per-client walk.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
}

// ClientConnected records a new live connection.
func (m *Metrics) ClientConnected() {
	m.connectedClients.Inc()
}

// ClientDisconnected records a connection going away.
func (m *Metrics) ClientDisconnected() {
	m.connectedClients.Dec()
}

// ObserveEvent records that event fired and took elapsedSeconds to handle.
func (m *Metrics) ObserveEvent(event string, elapsedSeconds float64) {
	m.eventsTotal.WithLabelValues(event).Inc()
	m.eventLatency.WithLabelValues(event).Observe(elapsedSeconds)
}

// Handler returns the http.Handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
