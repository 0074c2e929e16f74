// Package api exposes the asset store and the sync scheduler over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/cache"
	"github.com/Sternrassler/coin-sync/pkg/metrics"
	"github.com/Sternrassler/coin-sync/pkg/scheduler"
	"github.com/Sternrassler/coin-sync/pkg/store"
	"github.com/Sternrassler/coin-sync/pkg/syncer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for the HTTP surface.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ResponseCache stores rendered responses. cache.Manager implements it.
type ResponseCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
	Invalidate(ctx context.Context) error
	TTL() time.Duration
}

// SyncTrigger starts cycles and reports the worker state.
// scheduler.Scheduler implements it.
type SyncTrigger interface {
	Trigger() bool
	State() scheduler.State
	Interval() time.Duration
	NextRun() time.Time
}

// SyncStatus exposes the last finished cycle. syncer.Syncer implements it.
type SyncStatus interface {
	LastSummary() (syncer.Summary, bool)
	Cycles() int64
}

// Config wires the router's collaborators. Cache is optional; the market
// lookup routes are registered only when Market is set.
type Config struct {
	Store     store.Store
	Cache     ResponseCache
	Scheduler SyncTrigger
	Status    SyncStatus
	Market    MarketData

	// Release switches gin to release mode.
	Release bool
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.With().Str("component", "api").Logger()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", readyHandler(cfg.Store))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	coins := NewCoinController(cfg.Store, cfg.Cache, logger)
	syncs := NewSyncController(cfg.Scheduler, cfg.Status)

	api := router.Group("/api")
	{
		api.GET("/coins", coins.ListCoins)
		api.GET("/coins/top", coins.TopCoins)
		api.GET("/coins/:id", coins.GetCoin)
		if cfg.Market != nil {
			markets := NewMarketController(cfg.Market, cfg.Cache, logger)
			api.GET("/coins/trending", markets.GetTrending)
			api.GET("/coins/categories", markets.GetCategories)
			api.GET("/coins/:id/history", markets.GetHistory)
		}
		api.POST("/coins", coins.CreateCoin)
		api.PUT("/coins/:id", coins.UpdateCoin)
		api.DELETE("/coins/:id", coins.DeleteCoin)

		api.GET("/sync/status", syncs.Status)
		api.POST("/sync/trigger", syncs.Trigger)
	}

	return router
}

// readyHandler reports ready once the store answers a ping.
func readyHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Store ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, If-None-Match")
		c.Header("Access-Control-Expose-Headers", "ETag, X-Cache")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs every request except probes and records metrics.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		switch route {
		case "/health", "/ready", "/metrics":
			return
		}

		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
