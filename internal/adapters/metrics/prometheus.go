// Package metrics provides Prometheus instrumentation for directory lookups and batches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// Metrics implements usecases.LookupObserver and exposes its own registry.
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	BatchesTotal   prometheus.Counter
	BatchesActive  prometheus.Gauge
	BatchDuration  prometheus.Histogram
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		registry: registry,
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcheck_lookups_total",
				Help: "Total number of directory lookups by outcome",
			},
			[]string{"status"},
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adcheck_lookup_duration_seconds",
				Help:    "Time spent on a single directory lookup",
				Buckets: buckets,
			},
			[]string{"status"},
		),
		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adcheck_batches_total",
				Help: "Total number of batches processed",
			},
		),
		BatchesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adcheck_batches_active",
				Help: "Number of batches currently running",
			},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adcheck_batch_duration_seconds",
				Help:    "Time from batch start to report ready",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
}

// ObserveLookup records one finished lookup.
func (m *Metrics) ObserveLookup(status domain.LookupStatus, elapsed time.Duration) {
	label := string(status)
	if label == "" {
		label = "unknown"
	}
	m.LookupsTotal.WithLabelValues(label).Inc()
	m.LookupDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// BatchStarted records the start of a batch.
func (m *Metrics) BatchStarted() {
	m.BatchesActive.Inc()
}

// BatchFinished records the end of a batch.
func (m *Metrics) BatchFinished(elapsed time.Duration) {
	m.BatchesActive.Dec()
	m.BatchesTotal.Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
