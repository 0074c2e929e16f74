// Package cache provides API response caching with a Redis backend.
//
// Cached list and top responses are invalidated wholesale by bumping a
// generation counter that is part of every cache key. A sync cycle or an
// admin mutation calls Invalidate; entries of older generations are never
// read again and expire through their TTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	gen, _ := manager.Generation(ctx)
//	key := cache.KeyFromRequest(req, gen)
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// render, then manager.Set(ctx, key, cache.NewEntry(body, 200, "application/json", ttl))
//	}
//
// # Conditional Requests
//
// Entries carry a content hash ETag. NotModified reports whether a request's
// If-None-Match matches, in which case the handler answers 304 without a
// body.
//
// # Metrics
//
//   - api_cache_lookups_total{route,result} - Lookups in the current generation (hit, miss, expired)
//   - api_cache_stored_bytes_total - Encoded bytes written
//   - api_cache_not_modified_total - 304 responses
//   - api_cache_errors_total{operation} - Redis errors
//   - api_cache_generation - Current invalidation generation
//   - api_cache_invalidations_total - Generation bumps
package cache
