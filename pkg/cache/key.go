package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all response cache keys.
const KeyPrefix = "coinsync:api"

// CacheKey identifies a cached API response.
type CacheKey struct {
	// Path is the request path (e.g., "/api/coins")
	Path string

	// Query are the request query parameters
	Query url.Values

	// Generation is the invalidation generation the entry belongs to
	Generation int64

	// Route is the matched route template (e.g., "/api/coins/:id/history").
	// It labels metrics and is not part of the key.
	Route string
}

// KeyFromRequest builds the key of a request for the given generation.
func KeyFromRequest(r *http.Request, generation int64) CacheKey {
	return CacheKey{
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Generation: generation,
	}
}

// String generates a deterministic cache key string. Query parameters are
// sorted; repeated values are joined with commas.
//
// Example:
//
//	coinsync:api:g3:api/coins:limit=10:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix, fmt.Sprintf("g%d", k.Generation)}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			values := append([]string(nil), k.Query[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
