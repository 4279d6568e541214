package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	MemoriesIngested    prometheus.Counter
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	ProviderEmbeds      prometheus.Counter
	ImportanceFallbacks prometheus.Counter
	AccessesRecorded    prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what the engine uses by default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MemoriesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "ingested_total",
			Help: "Memories committed by AddMemories.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "embedding_cache_hits_total",
			Help: "Texts whose embedding was found in the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "embedding_cache_misses_total",
			Help: "Texts whose embedding was not cached.",
		}),
		ProviderEmbeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "provider_embeddings_total",
			Help: "Texts sent to the embedding provider.",
		}),
		ImportanceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "importance_fallbacks_total",
			Help: "Importance replies that could not be parsed and were defaulted.",
		}),
		AccessesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "accesses_recorded_total",
			Help: "Access events appended by AccessMemories.",
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aitown", Subsystem: "memory", Name: "operation_duration_seconds",
			Help:    "Latency of engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MemoriesIngested, m.CacheHits, m.CacheMisses, m.ProviderEmbeds,
			m.ImportanceFallbacks, m.AccessesRecorded, m.OperationDuration,
		)
	}
	return m
}

// observe records the duration of op since start.
func (m *Metrics) observe(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
