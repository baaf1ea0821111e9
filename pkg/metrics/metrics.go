// Package metrics defines the Prometheus collectors of the docstats
// services. Each Metrics owns the registry it was built on so tests and the
// two binaries never collide on the global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docstats"

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	ratioBuckets   = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5}
	termBuckets    = []float64{0, 1, 5, 10, 25, 50}
)

// Metrics holds every collector used by the services.
type Metrics struct {
	// HTTP, labelled by route pattern, method and status code.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Computations, labelled by operation.
	ComputationsTotal  *prometheus.CounterVec
	ComputationLatency *prometheus.HistogramVec
	StatisticsReturned *prometheus.HistogramVec
	CompressionRatio   prometheus.Histogram

	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheInvalidations  prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	DocumentsReadTotal    prometheus.Counter
	DocumentsSkippedTotal *prometheus.CounterVec

	// Analytics pipeline.
	EventsConsumedTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New builds Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegisterer(reg)
}

// NewWithRegisterer builds Metrics and registers them with reg. When reg is
// not also a Gatherer, Handler serves the default gatherer.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(counter("http", "requests_total",
			"HTTP requests by route, method and status code."),
			[]string{"route", "method", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(histogram("http", "request_duration_seconds",
			"HTTP request latency in seconds.", latencyBuckets),
			[]string{"route", "method"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		ComputationsTotal: prometheus.NewCounterVec(counter("", "computations_total",
			"Computations by operation and result (ok, cached, error)."),
			[]string{"operation", "result"}),
		ComputationLatency: prometheus.NewHistogramVec(histogram("", "computation_latency_seconds",
			"Computation latency in seconds, provider reads included.", latencyBuckets),
			[]string{"operation"}),
		StatisticsReturned: prometheus.NewHistogramVec(histogram("", "statistics_returned",
			"Ranked terms returned per computation.", termBuckets),
			[]string{"operation"}),
		CompressionRatio: prometheus.NewHistogram(histogram("huffman", "compression_ratio",
			"Packed Huffman size divided by the original UTF-8 size.", ratioBuckets)),

		CacheHitsTotal: prometheus.NewCounter(counter("cache", "hits_total",
			"Result cache hits.")),
		CacheMissesTotal: prometheus.NewCounter(counter("cache", "misses_total",
			"Result cache misses.")),
		CacheInvalidations: prometheus.NewCounter(counter("cache", "invalidations_total",
			"Result cache flushes from upload changes or admin calls.")),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),

		DocumentsReadTotal: prometheus.NewCounter(counter("provider", "documents_read_total",
			"Document files read and decoded.")),
		DocumentsSkippedTotal: prometheus.NewCounterVec(counter("provider", "documents_skipped_total",
			"Corpus documents skipped by reason (unreadable, undecodable, blank)."),
			[]string{"reason"}),

		EventsConsumedTotal: prometheus.NewCounterVec(counter("analytics", "events_consumed_total",
			"Computation events consumed by type and outcome."),
			[]string{"type", "outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.ComputationsTotal, m.ComputationLatency, m.StatisticsReturned, m.CompressionRatio,
		m.CacheHitsTotal, m.CacheMissesTotal, m.CacheInvalidations, m.CircuitBreakerState,
		m.DocumentsReadTotal, m.DocumentsSkippedTotal,
		m.EventsConsumedTotal,
	)

	m.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func counter(subsystem, name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
}

func histogram(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}
}
