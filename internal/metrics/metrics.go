// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medscan"

type Metrics struct {
	registry *prometheus.Registry

	Scans            *prometheus.CounterVec
	Analyses         *prometheus.CounterVec
	Fallbacks        prometheus.Counter
	Failures         *prometheus.CounterVec
	ReviewRequired   prometheus.Counter
	PipelineDuration prometheus.Histogram
	Pruned           *prometheus.CounterVec
}

// New registers every collector on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan pipeline runs by trigger and status.",
		}, []string{"trigger", "status"}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by document type and source.",
		}, []string{"document_type", "source"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_fallbacks_total",
			Help:      "Analyses sent to the remote API after a local analyzer failed.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Pipeline failures by stage.",
		}, []string{"stage"}),
		ReviewRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_required_total",
			Help:      "Results below the confidence threshold.",
		}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time from scan start to stored result.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		Pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_total",
			Help:      "Items removed by retention.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.Scans,
		m.Analyses,
		m.Fallbacks,
		m.Failures,
		m.ReviewRequired,
		m.PipelineDuration,
		m.Pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
