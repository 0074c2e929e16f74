package cache

import (
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "path only",
			key:  CacheKey{Path: "/api/coins"},
			want: "coinsync:api:g0:api/coins",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Path:       "/api/coins",
				Query:      url.Values{"page": {"2"}, "limit": {"10"}},
				Generation: 3,
			},
			want: "coinsync:api:g3:api/coins:limit=10:page=2",
		},
		{
			name: "repeated values sorted and joined",
			key: CacheKey{
				Path:  "/api/coins/top",
				Query: url.Values{"by": {"volume", "market_cap"}},
			},
			want: "coinsync:api:g0:api/coins/top:by=market_cap,volume",
		},
		{
			name: "empty path",
			key:  CacheKey{Generation: 7},
			want: "coinsync:api:g7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey{Path: "/api/coins", Query: url.Values{"search": {"btc"}, "page": {"1"}, "sort": {"market_cap"}}}
	b := CacheKey{Path: "/api/coins/", Query: url.Values{"sort": {"market_cap"}, "page": {"1"}, "search": {"btc"}}}

	for i := 0; i < 10; i++ {
		if a.String() != b.String() {
			t.Fatalf("keys differ: %q vs %q", a.String(), b.String())
		}
	}
}

func TestCacheKey_GenerationSeparatesEntries(t *testing.T) {
	old := CacheKey{Path: "/api/coins", Generation: 1}
	current := CacheKey{Path: "/api/coins", Generation: 2}

	if old.String() == current.String() {
		t.Error("keys of different generations must differ")
	}
}

func TestKeyFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/coins?limit=5&page=2", nil)

	key := KeyFromRequest(req, 4)
	if got, want := key.String(), "coinsync:api:g4:api/coins:limit=5:page=2"; got != want {
		t.Errorf("KeyFromRequest().String() = %q, want %q", got, want)
	}
}
