package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMatchesETag(t *testing.T) {
	etag := `"abc123"`

	tests := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{name: "empty", ifNoneMatch: "", want: false},
		{name: "exact", ifNoneMatch: `"abc123"`, want: true},
		{name: "weak", ifNoneMatch: `W/"abc123"`, want: true},
		{name: "wildcard", ifNoneMatch: "*", want: true},
		{name: "list", ifNoneMatch: `"zzz", "abc123"`, want: true},
		{name: "other", ifNoneMatch: `"zzz"`, want: false},
		{name: "unquoted", ifNoneMatch: `abc123`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesETag(tt.ifNoneMatch, etag); got != tt.want {
				t.Errorf("MatchesETag(%q) = %v, want %v", tt.ifNoneMatch, got, tt.want)
			}
		})
	}
}

func TestNotModified_NilSafe(t *testing.T) {
	if NotModified(nil, &CacheEntry{ETag: `"x"`}) {
		t.Error("NotModified(nil request) = true")
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if NotModified(req, nil) {
		t.Error("NotModified(nil entry) = true")
	}
}

func TestWriteEntry(t *testing.T) {
	entry := NewEntry([]byte(`{"ok":true}`), http.StatusOK, "application/json", time.Minute)

	t.Run("full response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/coins", nil)

		WriteEntry(rec, req, entry, CacheStatusHit)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if rec.Body.String() != `{"ok":true}` {
			t.Errorf("body = %q", rec.Body.String())
		}
		if rec.Header().Get("ETag") != entry.ETag {
			t.Errorf("ETag = %q, want %q", rec.Header().Get("ETag"), entry.ETag)
		}
		if rec.Header().Get(HeaderCacheStatus) != CacheStatusHit {
			t.Errorf("X-Cache = %q, want HIT", rec.Header().Get(HeaderCacheStatus))
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
		}
	})

	t.Run("not modified", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/coins", nil)
		req.Header.Set("If-None-Match", entry.ETag)
		before := promtest.ToFloat64(cacheNotModified)

		WriteEntry(rec, req, entry, "")

		if got := promtest.ToFloat64(cacheNotModified); got != before+1 {
			t.Errorf("not modified counter = %v, want %v", got, before+1)
		}

		if rec.Code != http.StatusNotModified {
			t.Errorf("status = %d, want 304", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
		if rec.Header().Get(HeaderCacheStatus) != "" {
			t.Errorf("X-Cache = %q, want unset", rec.Header().Get(HeaderCacheStatus))
		}
	})
}
