package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend layer.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paged_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paged_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// SharedResults tracks GetOrAdd calls that joined another
	// caller's in-flight population instead of starting their own.
	SharedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paged_cache_shared_results_total",
			Help: "Total number of single-flight waiters that shared an in-flight result",
		},
	)

	// CacheErrors tracks cache backend errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paged_cache_errors_total",
			Help: "Total number of cache backend errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
