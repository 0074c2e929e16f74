package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheEntry represents a cached API response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag is a strong validator derived from Data
	ETag string `json:"etag"`

	// ContentType of the response
	ContentType string `json:"content_type"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for body that expires after ttl.
func NewEntry(body []byte, statusCode int, contentType string, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:        body,
		ETag:        ComputeETag(body),
		ContentType: contentType,
		StatusCode:  statusCode,
		Expires:     now.Add(ttl),
		CachedAt:    now,
	}
}

// ComputeETag returns a quoted strong ETag for body.
func ComputeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
