package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskcal"

// Metrics holds Prometheus metrics for the sync layer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Operations      *prometheus.CounterVec
	CachedEvents    prometheus.Gauge
	SyncRuns        *prometheus.CounterVec
}

// New creates a metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of backend requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Backend request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache lookups by cache and result (hit, miss, inflight)",
			},
			[]string{"cache", "result"},
		),
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "operations_total",
				Help:      "Optimistic operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		CachedEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "events",
				Help:      "Number of events held by the session cache",
			},
		),
		SyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Full backend syncs by status",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one backend call.
func (m *Metrics) ObserveRequest(method, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(took.Seconds())
}

// CacheLookup records a hit, miss or in-flight answer.
func (m *Metrics) CacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// Operation records the final outcome of an optimistic operation.
func (m *Metrics) Operation(op, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// SetCachedEvents records the session cache size.
func (m *Metrics) SetCachedEvents(n int) {
	if m == nil {
		return
	}
	m.CachedEvents.Set(float64(n))
}

// SyncRun records a full sync.
func (m *Metrics) SyncRun(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SyncRuns.WithLabelValues(status).Inc()
}
