package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "search_requests_total",
		Help:      "Total search pipeline invocations by result status.",
	}, []string{"status"})

	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "search_duration_seconds",
		Help:      "End-to-end search pipeline duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	})

	ExternalRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "external_requests_total",
		Help:      "Total requests to the external catalog by result status.",
	}, []string{"status"})

	ExternalRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "external_request_duration_seconds",
		Help:      "External catalog request duration in seconds.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 3, 5, 10},
	})

	ExternalAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog",
		Name:      "external_available",
		Help:      "Whether the external catalog is available (1) or blocked by the circuit breaker (0).",
	})

	RateLimiterSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "rate_limiter_skips_total",
		Help:      "External consultations skipped because no token was available within the request timeout.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	PersistBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "persist_batches_total",
		Help:      "Background persistence batches by result status.",
	}, []string{"status"})

	PersistedEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "persisted_entries_total",
		Help:      "Catalog entries written by background persistence.",
	})

	SyncedEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "synced_entries_total",
		Help:      "Catalog entries refreshed by the backfill syncer, by result status.",
	}, []string{"status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		SearchDuration,
		ExternalRequestsTotal,
		ExternalRequestDuration,
		ExternalAvailable,
		RateLimiterSkipsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		PersistBatchesTotal,
		PersistedEntriesTotal,
		SyncedEntriesTotal,
	)
}
