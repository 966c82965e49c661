// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the item pipeline.
type Metrics struct {
	Registry             *prometheus.Registry
	ItemsReceivedTotal   *prometheus.CounterVec
	ItemsDroppedTotal    *prometheus.CounterVec
	ItemsStoredTotal     *prometheus.CounterVec
	SinkErrorsTotal      *prometheus.CounterVec
	SinkInsertDuration   *prometheus.HistogramVec
	EngineErrorsTotal    *prometheus.CounterVec
	NameCacheHitsTotal   prometheus.Counter
	NameCacheMissesTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	received := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_received_total",
			Help: "Total items handed to the pipeline.",
		},
		[]string{"kind"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_dropped_total",
			Help: "Total items dropped by a pipeline stage.",
		},
		[]string{"kind", "reason"},
	)
	stored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_stored_total",
			Help: "Total items written by each sink.",
		},
		[]string{"sink", "kind"},
	)
	sinkErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sink_errors_total",
			Help: "Total failed sink inserts.",
		},
		[]string{"sink"},
	)
	insertDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_sink_insert_duration_seconds",
			Help:    "Latency of a single sink insert.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
	engineErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_engine_errors_total",
			Help: "Crawl engine request failures observed by the feed, by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_name_cache_hits_total",
			Help: "Book names served from the normalisation cache.",
		},
	)
	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_name_cache_misses_total",
			Help: "Book names normalised without a cache entry.",
		},
	)

	registry.MustRegister(received, dropped, stored, sinkErrors, insertDuration, engineErrors, cacheHits, cacheMisses)

	return &Metrics{
		Registry:             registry,
		ItemsReceivedTotal:   received,
		ItemsDroppedTotal:    dropped,
		ItemsStoredTotal:     stored,
		SinkErrorsTotal:      sinkErrors,
		SinkInsertDuration:   insertDuration,
		EngineErrorsTotal:    engineErrors,
		NameCacheHitsTotal:   cacheHits,
		NameCacheMissesTotal: cacheMisses,
	}
}

// IncReceived increments the received counter for a kind.
func (m *Metrics) IncReceived(kind string) {
	if m == nil {
		return
	}
	m.ItemsReceivedTotal.WithLabelValues(kind).Inc()
}

// IncDropped increments the dropped counter for a kind and reason.
func (m *Metrics) IncDropped(kind, reason string) {
	if m == nil {
		return
	}
	m.ItemsDroppedTotal.WithLabelValues(kind, reason).Inc()
}

// ObserveInsert records one sink insert and its outcome.
func (m *Metrics) ObserveInsert(sink, kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SinkInsertDuration.WithLabelValues(sink).Observe(d.Seconds())
	if err != nil {
		m.SinkErrorsTotal.WithLabelValues(sink).Inc()
		return
	}
	m.ItemsStoredTotal.WithLabelValues(sink, kind).Inc()
}

// IncEngineError increments the engine errors counter for a type label.
func (m *Metrics) IncEngineError(errorType string) {
	if m == nil {
		return
	}
	m.EngineErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncNameCache records a normalisation cache lookup.
func (m *Metrics) IncNameCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.NameCacheHitsTotal.Inc()
		return
	}
	m.NameCacheMissesTotal.Inc()
}
