package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results.
const (
	lookupHit     = "hit"
	lookupMiss    = "miss"
	lookupExpired = "expired"
)

var (
	// cacheLookups counts Get calls by route. Entries of an older
	// generation are never looked up, so a generation bump shows up as a
	// burst of misses.
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_lookups_total",
			Help: "Response cache lookups in the current generation by route and result (hit, miss, expired)",
		},
		[]string{"route", "result"},
	)

	cacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_stored_bytes_total",
			Help: "Encoded bytes written to the response cache",
		},
	)

	cacheNotModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_not_modified_total",
			Help: "Requests answered 304 because If-None-Match held the current ETag",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_errors_total",
			Help: "Redis errors by operation; reads fall back to the store",
		},
		[]string{"operation"}, // get, set, delete, generation, invalidate
	)

	cacheGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_generation",
			Help: "Current invalidation generation last read from or written to Redis",
		},
	)

	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_cache_invalidations_total",
			Help: "Generation bumps issued by this process (writes and applied sync cycles)",
		},
	)
)

func recordLookup(key CacheKey, result string) {
	route := key.Route
	if route == "" {
		route = key.Path
	}
	cacheLookups.WithLabelValues(route, result).Inc()
}
