// Package metrics defines the Prometheus collectors exported by shelf.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shelf"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	Fallbacks        *prometheus.CounterVec
	ResultCache      *prometheus.CounterVec
	IndexSize        prometheus.Gauge
	IndexMutations   *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "External provider calls by provider, operation and status",
			},
			[]string{"provider", "op", "status"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "External provider call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "op"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_fallbacks_total",
				Help:      "Pipeline stages that fell back to their local default",
			},
			[]string{"stage"},
		),
		ResultCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_total",
				Help:      "Result cache hits and misses",
			},
			[]string{"result"},
		),
		IndexSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_records",
				Help:      "Records currently held by the similarity index",
			},
		),
		IndexMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_mutations_total",
				Help:      "Similarity index mutations by operation and status",
			},
			[]string{"op", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Recommendation pipeline duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"entry"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.ProviderRequests,
			m.ProviderDuration,
			m.Fallbacks,
			m.ResultCache,
			m.IndexSize,
			m.IndexMutations,
			m.QueryDuration,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// ObserveProvider records one provider call.
func (m *Metrics) ObserveProvider(provider, op string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ProviderRequests.WithLabelValues(provider, op, status).Inc()
	m.ProviderDuration.WithLabelValues(provider, op).Observe(seconds)
}

// Fallback counts a stage that used its local default.
func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(stage).Inc()
}

// Mutation counts an index mutation and updates the size gauge.
func (m *Metrics) Mutation(op string, size int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.IndexMutations.WithLabelValues(op, status).Inc()
	m.IndexSize.Set(float64(size))
}

// ObserveQuery records a pipeline run for one entry point.
func (m *Metrics) ObserveQuery(entry string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(entry).Observe(seconds)
}

// CacheCounter returns the result cache counter, or nil.
func (m *Metrics) CacheCounter() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.ResultCache
}
