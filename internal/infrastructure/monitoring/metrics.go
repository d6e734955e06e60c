package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the probe engine.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Stream metrics
	TraceEventsTotal *prometheus.CounterVec
	StreamChunks     prometheus.Counter

	// Correlation metrics
	RecordsTotal       prometheus.Counter
	ProtocolViolations prometheus.Counter

	// Persistence metrics
	PersistBatches  prometheus.Counter
	PersistFailures prometheus.Counter

	// Ops HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on reg. A nil
// registerer uses the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canary_cycles_total",
				Help: "Total number of probe cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canary_cycle_duration_seconds",
				Help:    "Probe cycle duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		TraceEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canary_trace_events_total",
				Help: "Total number of classified trace events by kind",
			},
			[]string{"kind"},
		),
		StreamChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canary_stream_chunks_total",
				Help: "Total number of SSE data chunks consumed",
			},
		),
		RecordsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canary_records_total",
				Help: "Total number of correlation records finalized",
			},
		),
		ProtocolViolations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canary_protocol_violations_total",
				Help: "Total number of correlation protocol violations",
			},
		),
		PersistBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canary_persist_batches_total",
				Help: "Total number of record batches committed",
			},
		),
		PersistFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canary_persist_failures_total",
				Help: "Total number of failed batch commits",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canary_http_requests_total",
				Help: "Total number of ops HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canary_http_request_duration_seconds",
				Help:    "Ops HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canary_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RecordCycle records a completed probe cycle.
func (m *Metrics) RecordCycle(outcome string, duration time.Duration, records int) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.RecordsTotal.Add(float64(records))
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordTraceEvent records one classified trace event.
func (m *Metrics) RecordTraceEvent(kind string) {
	m.TraceEventsTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an ops server request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
