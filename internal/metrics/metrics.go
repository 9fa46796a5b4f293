// Package metrics holds the Prometheus collectors of the translation
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cvtran"

type Metrics struct {
	fragments       *prometheus.CounterVec
	backendAttempts *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	pipeline        *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Translated fragments by delivery mode and outcome.",
		}, []string{"mode", "outcome"}),
		backendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Backend calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Document cache lookups by result.",
		}, []string{"result"}),
		pipeline: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall-clock time of a document translation.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
	}
	reg.MustRegister(m.fragments, m.backendAttempts, m.cacheLookups, m.pipeline)
	return m
}

func (m *Metrics) Fragment(mode, outcome string) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) BackendAttempt(backend, outcome string) {
	if m == nil {
		return
	}
	m.backendAttempts.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePipeline(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipeline.WithLabelValues(mode).Observe(d.Seconds())
}
