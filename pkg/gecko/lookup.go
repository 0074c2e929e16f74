package gecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/coin-sync/pkg/market"
)

// Lookup endpoints.
const (
	TrendingPath   = "/search/trending"
	CategoriesPath = "/coins/categories"
)

// MarketChart returns the price, market cap and volume history of one asset
// over the last days. days is a positive number or "max".
func (c *Client) MarketChart(ctx context.Context, id, days string) (*market.Chart, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: coin id %q", ErrInvalidArgument, id)
	}
	if !ValidDays(days) {
		return nil, fmt.Errorf("%w: days %q", ErrInvalidArgument, days)
	}
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}

	q := url.Values{}
	q.Set("vs_currency", c.config.VsCurrency)
	q.Set("days", days)

	var chart market.Chart
	err := c.fetch(ctx, call{
		path:          "/coins/" + id + "/market_chart",
		query:         q,
		notFoundFinal: true,
		decode: func(body []byte) error {
			return json.Unmarshal(body, &chart)
		},
	})
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// Trending returns the upstream's trending search results.
func (c *Client) Trending(ctx context.Context) ([]market.TrendingCoin, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}

	var payload struct {
		Coins []market.TrendingCoin `json:"coins"`
	}
	err := c.fetch(ctx, call{
		path:  TrendingPath,
		query: url.Values{},
		decode: func(body []byte) error {
			return json.Unmarshal(body, &payload)
		},
	})
	if err != nil {
		return nil, err
	}
	if payload.Coins == nil {
		payload.Coins = []market.TrendingCoin{}
	}
	return payload.Coins, nil
}

// Categories returns every asset category with its market data.
func (c *Client) Categories(ctx context.Context) ([]market.Category, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}

	var categories []market.Category
	err := c.fetch(ctx, call{
		path:  CategoriesPath,
		query: url.Values{},
		decode: func(body []byte) error {
			return json.Unmarshal(body, &categories)
		},
	})
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []market.Category{}
	}
	return categories, nil
}

// ValidDays reports whether days is accepted by MarketChart.
func ValidDays(days string) bool {
	if days == "max" {
		return true
	}
	n, err := strconv.ParseFloat(days, 64)
	return err == nil && n > 0 && n <= 36500
}
