// Package metric provides Prometheus metrics for the wis2node dispatch
// engine and an HTTP server exposing them alongside a health endpoint.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains all wis2node platform metrics
type Metrics struct {
	// Dispatch metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesProcessed *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	SlotWaitDuration  prometheus.Histogram
	WorkersActive     prometheus.Gauge
	WorkerCeiling     prometheus.Gauge
	ErrorsTotal       *prometheus.CounterVec

	// Mapping cache metrics
	MappingEntries   prometheus.Gauge
	MappingRefreshes *prometheus.CounterVec

	// Broker metrics
	BrokerConnected  prometheus.Gauge
	BrokerReconnects prometheus.Counter
	Published        *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "dispatch",
				Name:      "messages_received_total",
				Help:      "Total number of broker messages received by topic class",
			},
			[]string{"class"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "dispatch",
				Name:      "messages_processed_total",
				Help:      "Total number of messages processed by class and status",
			},
			[]string{"class", "status"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "dispatch",
				Name:      "messages_dropped_total",
				Help:      "Total number of messages dropped by reason",
			},
			[]string{"reason"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wis2node",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Worker processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		SlotWaitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wis2node",
				Subsystem: "admission",
				Name:      "slot_wait_seconds",
				Help:      "Time spent waiting for a worker slot",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
		),

		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wis2node",
				Subsystem: "admission",
				Name:      "workers_active",
				Help:      "Number of transform workers currently running",
			},
		),

		WorkerCeiling: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wis2node",
				Subsystem: "admission",
				Name:      "worker_ceiling",
				Help:      "Configured maximum number of concurrent workers",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by class",
			},
			[]string{"class"},
		),

		MappingEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wis2node",
				Subsystem: "mappings",
				Name:      "entries",
				Help:      "Number of topic hierarchies in the active mapping table",
			},
		),

		MappingRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "mappings",
				Name:      "refreshes_total",
				Help:      "Total number of mapping table refreshes by status",
			},
			[]string{"status"},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wis2node",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
		),

		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wis2node",
				Subsystem: "broker",
				Name:      "published_total",
				Help:      "Total number of messages published by subject class",
			},
			[]string{"class"},
		),
	}
}

// Registry bundles the platform metrics with their Prometheus registry
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with all platform metrics plus Go runtime
// and process collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	reg.MustRegister(
		m.MessagesReceived,
		m.MessagesProcessed,
		m.MessagesDropped,
		m.DispatchDuration,
		m.SlotWaitDuration,
		m.WorkersActive,
		m.WorkerCeiling,
		m.ErrorsTotal,
		m.MappingEntries,
		m.MappingRefreshes,
		m.BrokerConnected,
		m.BrokerReconnects,
		m.Published,
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: reg,
		Metrics:            m,
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// RecordReceived increments the received counter for a topic class
func (m *Metrics) RecordReceived(class string) {
	m.MessagesReceived.WithLabelValues(class).Inc()
}

// RecordProcessed increments the processed counter
func (m *Metrics) RecordProcessed(class, status string) {
	m.MessagesProcessed.WithLabelValues(class, status).Inc()
}

// RecordDropped increments the dropped counter for a reason
func (m *Metrics) RecordDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordDispatch records a worker run duration
func (m *Metrics) RecordDispatch(status string, d time.Duration) {
	m.DispatchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSlotWait records time spent blocked in admission
func (m *Metrics) RecordSlotWait(d time.Duration) {
	m.SlotWaitDuration.Observe(d.Seconds())
}

// RecordError increments the error counter for a class
func (m *Metrics) RecordError(class string) {
	m.ErrorsTotal.WithLabelValues(class).Inc()
}

// RecordBrokerStatus updates the broker connection gauge
func (m *Metrics) RecordBrokerStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.Set(value)
}
