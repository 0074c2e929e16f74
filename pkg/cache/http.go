package cache

import (
	"net/http"
	"strings"
)

// Response headers set on cached responses.
const (
	HeaderCacheStatus = "X-Cache"
	CacheStatusHit    = "HIT"
	CacheStatusMiss   = "MISS"
)

// NotModified reports whether the request's If-None-Match header matches
// the entry, so a 304 can be sent instead of the body.
func NotModified(r *http.Request, entry *CacheEntry) bool {
	if r == nil || entry == nil || entry.ETag == "" {
		return false
	}
	return MatchesETag(r.Header.Get("If-None-Match"), entry.ETag)
}

// MatchesETag checks an If-None-Match value against etag. It accepts "*",
// comma-separated lists and weak validators.
func MatchesETag(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == want {
			return true
		}
	}
	return false
}

// WriteEntry writes an entry, or 304 if the request already holds the
// current version. cacheStatus is sent as X-Cache unless empty.
func WriteEntry(w http.ResponseWriter, r *http.Request, entry *CacheEntry, cacheStatus string) {
	w.Header().Set("ETag", entry.ETag)
	if cacheStatus != "" {
		w.Header().Set(HeaderCacheStatus, cacheStatus)
	}

	if NotModified(r, entry) {
		cacheNotModified.Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Data)
}
