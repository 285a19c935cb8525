// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lorrc/notification-relay/internal/core/domain"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry          *prometheus.Registry
	activeConnections prometheus.Gauge
	delivered         *prometheus.CounterVec
	published         *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_websocket_connections",
			Help: "Authenticated websocket connections held by this instance.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "websocketevent_delivered",
			Help: "Events pushed to websocket connections.",
		}, []string{"eventtype"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications published to the broadcast channel.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeConnections,
		m.delivered,
		m.published,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionAdded() {
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionRemoved() {
	m.activeConnections.Dec()
}

func (m *Metrics) EventDelivered(eventType domain.EventType) {
	m.delivered.WithLabelValues(string(eventType)).Inc()
}

// ObservePublish counts a publish attempt by outcome.
func (m *Metrics) ObservePublish(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}
