package market

// Chart is the market history of one asset. Each point is
// [unix milliseconds, value].
type Chart struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// TrendingCoin is one entry of the upstream trending search.
type TrendingCoin struct {
	Item TrendingItem `json:"item"`
}

// TrendingItem describes a trending asset.
type TrendingItem struct {
	ID            string   `json:"id"`
	CoinID        int64    `json:"coin_id"`
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	MarketCapRank *int64   `json:"market_cap_rank"`
	Thumb         string   `json:"thumb"`
	Small         string   `json:"small"`
	Large         string   `json:"large"`
	Slug          string   `json:"slug"`
	PriceBTC      *float64 `json:"price_btc"`
	Score         int      `json:"score"`
}

// Category is an upstream asset category with aggregate market data.
type Category struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	MarketCap          *float64 `json:"market_cap"`
	MarketCapChange24h *float64 `json:"market_cap_change_24h"`
	Content            string   `json:"content"`
	Top3Coins          []string `json:"top_3_coins"`
	Volume24h          *float64 `json:"volume_24h"`
	UpdatedAt          string   `json:"updated_at"`
}
