package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors, registered on their own
// registry so several instances can coexist (tests, embedded use).
type Metrics struct {
	registry *prometheus.Registry

	// Message metrics
	MessagesTotal *prometheus.CounterVec

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Store metrics
	StoreRecords  prometheus.Gauge
	StoreErrors   *prometheus.CounterVec
	ImportedLines *prometheus.CounterVec

	// Transport metrics
	TransportErrors *prometheus.CounterVec
	DeliveryErrors  *prometheus.CounterVec
	ThrottledTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_messages_total",
				Help: "Total number of incoming messages",
			},
			[]string{"channel"},
		),

		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_queries_total",
				Help: "Total number of size queries by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sizebot_query_duration_seconds",
				Help:    "Time taken to answer a size query",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_commands_total",
				Help: "Total number of chat commands by status",
			},
			[]string{"command", "status"},
		),
		CommandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sizebot_command_duration_seconds",
				Help:    "Time taken to execute chat commands",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		StoreRecords: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "sizebot_store_records",
				Help: "Number of records in the size table at the last scan",
			},
		),
		StoreErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_store_errors_total",
				Help: "Total number of failed store operations",
			},
			[]string{"operation"},
		),
		ImportedLines: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_import_lines_total",
				Help: "Bulk import lines by result",
			},
			[]string{"result"},
		),

		TransportErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_transport_errors_total",
				Help: "Total number of transport polling failures",
			},
			[]string{"transport"},
		),
		DeliveryErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_delivery_errors_total",
				Help: "Total number of replies that could not be delivered",
			},
			[]string{"channel"},
		),
		ThrottledTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sizebot_throttled_total",
				Help: "Total number of messages dropped by the rate limit",
			},
			[]string{"channel"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery counts an answered query.
func (m *Metrics) RecordQuery(outcome string, d time.Duration) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(d.Seconds())
}

// RecordCommand counts an executed command.
func (m *Metrics) RecordCommand(command, status string, d time.Duration) {
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordImport adds the line counts of a bulk import.
func (m *Metrics) RecordImport(loaded, skipped, failed int) {
	m.ImportedLines.WithLabelValues("loaded").Add(float64(loaded))
	m.ImportedLines.WithLabelValues("skipped").Add(float64(skipped))
	m.ImportedLines.WithLabelValues("failed").Add(float64(failed))
}
