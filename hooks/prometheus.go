package hooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exports service observations as Prometheus metrics.
type PrometheusMetrics struct {
	stageDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   prometheus.Counter
	evictions     prometheus.Counter
	evictedBytes  prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors with reg; pass
// prometheus.DefaultRegisterer for the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixelserve_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixelserve_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"coalesced"},
		),
		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelserve_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
		evictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelserve_cache_evictions_total",
				Help: "Total number of evicted cache entries",
			},
		),
		evictedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pixelserve_cache_evicted_bytes_total",
				Help: "Total payload bytes reclaimed by eviction",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixelserve_errors_total",
				Help: "Total number of errors",
			},
			[]string{"stage", "kind"},
		),
	}
}

func (m *PrometheusMetrics) RecordStageDuration(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordCacheHit(coalesced bool) {
	label := "false"
	if coalesced {
		label = "true"
	}
	m.cacheHits.WithLabelValues(label).Inc()
}

func (m *PrometheusMetrics) RecordCacheMiss() { m.cacheMisses.Inc() }

func (m *PrometheusMetrics) RecordEviction(bytes int64) {
	m.evictions.Inc()
	m.evictedBytes.Add(float64(bytes))
}

func (m *PrometheusMetrics) RecordError(stage string, kind string) {
	m.errorsTotal.WithLabelValues(stage, kind).Inc()
}
