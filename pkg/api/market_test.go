package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/coin-sync/internal/testutil"
	"github.com/Sternrassler/coin-sync/pkg/cache"
	"github.com/Sternrassler/coin-sync/pkg/gecko"
	"github.com/Sternrassler/coin-sync/pkg/logging"
	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/Sternrassler/coin-sync/pkg/store"
	"github.com/gin-gonic/gin"
)

func newMarketRouter(t *testing.T, mock *testutil.MockGecko, apiKey string, responseCache ResponseCache) *gin.Engine {
	t.Helper()

	st, err := store.OpenGorm(store.DriverSQLite, filepath.Join(t.TempDir(), "api.db"), logging.Nop())
	if err != nil {
		t.Fatalf("OpenGorm() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := gecko.DefaultConfig(apiKey)
	cfg.BaseURL = mock.URL()
	cfg.Retry = gecko.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	client, err := gecko.New(cfg)
	if err != nil {
		t.Fatalf("gecko.New() error = %v", err)
	}

	return NewRouter(Config{
		Store:     st,
		Cache:     responseCache,
		Scheduler: &fakeTrigger{},
		Status:    &fakeStatus{},
		Market:    client,
	})
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestMarketRoutes(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()
	mock.SetPath("/coins/bitcoin/market_chart", testutil.NewJSONResponse(`{"prices":[[1,2]],"market_caps":[],"total_volumes":[]}`))
	mock.SetPath("/coins/nope/market_chart", testutil.NewNotFoundResponse())
	mock.SetPath(gecko.TrendingPath, testutil.NewJSONResponse(`{"coins":[{"item":{"id":"pepe","name":"Pepe","symbol":"PEPE"}}]}`))
	mock.SetPath(gecko.CategoriesPath, testutil.NewJSONResponse(`[{"id":"layer-1","name":"Layer 1"}]`))

	router := newMarketRouter(t, mock, "key", nil)

	tests := []struct {
		name     string
		target   string
		wantCode int
	}{
		{name: "history", target: "/api/coins/bitcoin/history?days=30", wantCode: 200},
		{name: "history max", target: "/api/coins/bitcoin/history?days=max", wantCode: 200},
		{name: "history without days", target: "/api/coins/bitcoin/history", wantCode: 400},
		{name: "history bad days", target: "/api/coins/bitcoin/history?days=-3", wantCode: 400},
		{name: "history unknown coin", target: "/api/coins/nope/history?days=1", wantCode: 404},
		{name: "trending", target: "/api/coins/trending", wantCode: 200},
		{name: "categories", target: "/api/coins/categories", wantCode: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.target)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	trending := decode[[]market.TrendingCoin](t, get(router, "/api/coins/trending"))
	if len(trending) != 1 || trending[0].Item.ID != "pepe" {
		t.Errorf("trending = %+v", trending)
	}

	chart := decode[market.Chart](t, get(router, "/api/coins/bitcoin/history?days=30"))
	if len(chart.Prices) != 1 || chart.Prices[0][1] != 2 {
		t.Errorf("chart = %+v", chart)
	}
}

func TestMarketRoutes_DoNotShadowCoinRoutes(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()

	router := newMarketRouter(t, mock, "key", nil)

	if w := get(router, "/api/coins/bitcoin"); w.Code != http.StatusNotFound {
		t.Errorf("GET /api/coins/bitcoin status = %d, want 404 from the store", w.Code)
	}
	if w := get(router, "/api/coins/top"); w.Code != http.StatusOK {
		t.Errorf("GET /api/coins/top status = %d, want 200", w.Code)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("upstream requests = %d, want 0", mock.RequestCount())
	}
}

func TestMarketRoutes_UpstreamFailures(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()
	mock.SetPath(gecko.TrendingPath, testutil.NewServerErrorResponse())

	if w := get(newMarketRouter(t, mock, "key", nil), "/api/coins/trending"); w.Code != http.StatusBadGateway {
		t.Errorf("exhausted retries status = %d, want 502", w.Code)
	}
	if got := mock.PathRequests(gecko.TrendingPath); got != 2 {
		t.Errorf("upstream requests = %d, want 2 (1 + 1 retry)", got)
	}

	if w := get(newMarketRouter(t, mock, "", nil), "/api/coins/categories"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no credentials status = %d, want 503", w.Code)
	}
}

func TestMarketRoutes_Cached(t *testing.T) {
	mock := testutil.NewMockGecko()
	defer mock.Close()
	mock.SetPath(gecko.CategoriesPath, testutil.NewJSONResponse(`[{"id":"defi","name":"DeFi"}]`))

	router := newMarketRouter(t, mock, "key", newMemoryCache())

	first := get(router, "/api/coins/categories")
	if first.Code != http.StatusOK || first.Header().Get(cache.HeaderCacheStatus) != cache.CacheStatusMiss {
		t.Fatalf("first: status %d, X-Cache %q", first.Code, first.Header().Get(cache.HeaderCacheStatus))
	}

	second := get(router, "/api/coins/categories")
	if second.Header().Get(cache.HeaderCacheStatus) != cache.CacheStatusHit {
		t.Errorf("second X-Cache = %q, want HIT", second.Header().Get(cache.HeaderCacheStatus))
	}
	if got := mock.PathRequests(gecko.CategoriesPath); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestNewRouter_WithoutMarketData(t *testing.T) {
	ts := newTestServer(t, false)

	if w := ts.do(t, http.MethodGet, "/api/coins/trending", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (treated as a coin id)", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/coins/bitcoin/history?days=1", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("history status = %d, want 404 (route not registered)", w.Code)
	}
}
