package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/coin-sync/pkg/gecko"
	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MarketData answers live lookups against the upstream API.
// gecko.Client implements it.
type MarketData interface {
	MarketChart(ctx context.Context, id, days string) (*market.Chart, error)
	Trending(ctx context.Context) ([]market.TrendingCoin, error)
	Categories(ctx context.Context) ([]market.Category, error)
}

// MarketController proxies upstream lookups through the response cache.
type MarketController struct {
	market    MarketData
	responses responder
	logger    zerolog.Logger
}

// NewMarketController creates a new market controller. responseCache may be nil.
func NewMarketController(data MarketData, responseCache ResponseCache, logger zerolog.Logger) *MarketController {
	return &MarketController{
		market:    data,
		responses: responder{cache: responseCache, logger: logger},
		logger:    logger,
	}
}

// GetHistory returns the market chart of one coin
// GET /api/coins/:id/history?days=
func (mc *MarketController) GetHistory(c *gin.Context) {
	days := c.Query("days")
	if days == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Days parameter is required"})
		return
	}
	if !gecko.ValidDays(days) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Days must be a positive number or max"})
		return
	}

	id := c.Param("id")
	mc.responses.serve(c, func(ctx context.Context) (any, error) {
		return mc.market.MarketChart(ctx, id, days)
	}, mc.upstreamError)
}

// GetTrending returns the trending coins
// GET /api/coins/trending
func (mc *MarketController) GetTrending(c *gin.Context) {
	mc.responses.serve(c, func(ctx context.Context) (any, error) {
		return mc.market.Trending(ctx)
	}, mc.upstreamError)
}

// GetCategories returns the coin categories
// GET /api/coins/categories
func (mc *MarketController) GetCategories(c *gin.Context) {
	mc.responses.serve(c, func(ctx context.Context) (any, error) {
		return mc.market.Categories(ctx)
	}, mc.upstreamError)
}

// upstreamError maps lookup errors to status codes.
func (mc *MarketController) upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gecko.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Coin not found"})
	case errors.Is(err, gecko.ErrInvalidArgument),
		errors.Is(err, gecko.ErrPageSkipped),
		errors.Is(err, gecko.ErrUnrecoverable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	case errors.Is(err, gecko.ErrNoCredentials):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Market data is not configured"})
	default:
		mc.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Market lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch market data"})
	}
}
