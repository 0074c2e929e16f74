package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/Sternrassler/coin-sync/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// topCriteria maps the public "by" values to sort columns.
var topCriteria = map[string]market.SortField{
	"market_cap":       market.SortMarketCap,
	"volume":           market.SortTotalVolume,
	"price_change_24h": market.SortPriceChangePct24h,
}

// CoinController handles asset requests.
type CoinController struct {
	store     store.Store
	responses responder
	logger    zerolog.Logger
}

// NewCoinController creates a new coin controller. responseCache may be nil.
func NewCoinController(st store.Store, responseCache ResponseCache, logger zerolog.Logger) *CoinController {
	return &CoinController{
		store:     st,
		responses: responder{cache: responseCache, logger: logger},
		logger:    logger,
	}
}

// CoinList is the paginated list response.
type CoinList struct {
	Coins       []market.Asset `json:"coins"`
	Total       int64          `json:"total"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}

// ListCoins returns one page of assets
// GET /api/coins?page&limit&search&sort
func (cc *CoinController) ListCoins(c *gin.Context) {
	query := store.ListQuery{
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", store.DefaultLimit),
		Search: c.Query("search"),
		Sort:   market.SortField(c.Query("sort")),
	}
	if query.Sort != "" && !query.Sort.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort field"})
		return
	}
	if query.Page > store.MaxPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Page out of range"})
		return
	}
	query = query.Normalize()

	cc.responses.serve(c, func(ctx context.Context) (any, error) {
		assets, total, err := cc.store.ListAssets(ctx, query)
		if err != nil {
			return nil, err
		}
		if assets == nil {
			assets = []market.Asset{}
		}
		return CoinList{
			Coins:       assets,
			Total:       total,
			TotalPages:  int((total + int64(query.Limit) - 1) / int64(query.Limit)),
			CurrentPage: query.Page,
		}, nil
	}, cc.fetchFailed)
}

// TopCoins returns the highest ranked assets by one criterion
// GET /api/coins/top?limit&by=market_cap|volume|price_change_24h
func (cc *CoinController) TopCoins(c *gin.Context) {
	field, ok := topCriteria[c.DefaultQuery("by", "market_cap")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort criteria"})
		return
	}

	limit := queryInt(c, "limit", store.DefaultLimit)
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	if limit > store.MaxLimit {
		limit = store.MaxLimit
	}

	cc.responses.serve(c, func(ctx context.Context) (any, error) {
		assets, err := cc.store.TopAssets(ctx, field, limit)
		if err != nil {
			return nil, err
		}
		if assets == nil {
			assets = []market.Asset{}
		}
		return assets, nil
	}, cc.fetchFailed)
}

// GetCoin returns a single asset
// GET /api/coins/:id
func (cc *CoinController) GetCoin(c *gin.Context) {
	asset, err := cc.store.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		cc.storeError(c, err, "Failed to fetch coin")
		return
	}
	c.JSON(http.StatusOK, asset)
}

// CreateCoin stores a new asset
// POST /api/coins
func (cc *CoinController) CreateCoin(c *gin.Context) {
	var record market.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coin id is required"})
		return
	}

	asset := market.AssetFromRecord(record, time.Now())
	asset.LastSyncedAt = nil

	if err := cc.store.CreateAsset(c.Request.Context(), asset); err != nil {
		cc.storeError(c, err, "Failed to create coin")
		return
	}

	cc.responses.invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, asset)
}

// UpdateCoin applies a partial update
// PUT /api/coins/:id
func (cc *CoinController) UpdateCoin(c *gin.Context) {
	var patch market.AssetPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	asset, err := cc.store.UpdateAsset(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		cc.storeError(c, err, "Failed to update coin")
		return
	}

	cc.responses.invalidate(c.Request.Context())
	c.JSON(http.StatusOK, asset)
}

// DeleteCoin removes an asset
// DELETE /api/coins/:id
func (cc *CoinController) DeleteCoin(c *gin.Context) {
	if err := cc.store.DeleteAsset(c.Request.Context(), c.Param("id")); err != nil {
		cc.storeError(c, err, "Failed to delete coin")
		return
	}

	cc.responses.invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Coin deleted"})
}

func (cc *CoinController) fetchFailed(c *gin.Context, err error) {
	cc.storeError(c, err, "Failed to fetch coins")
}

// storeError maps store errors to status codes.
func (cc *CoinController) storeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Coin not found"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Coin already exists"})
	case errors.Is(err, store.ErrInvalidAsset):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coin id is required"})
	default:
		cc.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// queryInt parses an integer query parameter. Malformed values fall back to
// the default.
func queryInt(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
