// Package market defines the asset snapshot types shared by the fetcher,
// the reconciliation writer and the store backends.
package market

import "time"

// Record is one asset snapshot as returned by the upstream /coins/markets
// listing. Numeric fields are nil when the upstream omits them.
type Record struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int64   `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// Asset is the persisted counterpart of Record, keyed by the upstream
// identifier. Exactly one Asset exists per identifier.
type Asset struct {
	ID                       string   `gorm:"primaryKey;size:191" bson:"_id" json:"id"`
	Symbol                   string   `gorm:"size:64;index" bson:"symbol" json:"symbol"`
	Name                     string   `gorm:"size:255;index" bson:"name" json:"name"`
	Image                    string   `bson:"image" json:"image"`
	CurrentPrice             *float64 `bson:"current_price" json:"current_price"`
	MarketCap                *float64 `gorm:"index" bson:"market_cap" json:"market_cap"`
	MarketCapRank            *int64   `bson:"market_cap_rank" json:"market_cap_rank"`
	TotalVolume              *float64 `bson:"total_volume" json:"total_volume"`
	High24h                  *float64 `gorm:"column:high_24h" bson:"high_24h" json:"high_24h"`
	Low24h                   *float64 `gorm:"column:low_24h" bson:"low_24h" json:"low_24h"`
	PriceChange24h           *float64 `gorm:"column:price_change_24h" bson:"price_change_24h" json:"price_change_24h"`
	PriceChangePercentage24h *float64 `gorm:"column:price_change_percentage_24h" bson:"price_change_percentage_24h" json:"price_change_percentage_24h"`

	LastSyncedAt *time.Time `bson:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// TableName pins the gorm table name.
func (Asset) TableName() string {
	return "assets"
}

// AssetFromRecord builds the persisted form of a fetched record. Every
// synchronized field is copied, nil values included, so an upsert fully
// replaces the previous snapshot.
func AssetFromRecord(r Record, syncedAt time.Time) *Asset {
	synced := syncedAt.UTC()
	return &Asset{
		ID:                       r.ID,
		Symbol:                   r.Symbol,
		Name:                     r.Name,
		Image:                    r.Image,
		CurrentPrice:             r.CurrentPrice,
		MarketCap:                r.MarketCap,
		MarketCapRank:            r.MarketCapRank,
		TotalVolume:              r.TotalVolume,
		High24h:                  r.High24h,
		Low24h:                   r.Low24h,
		PriceChange24h:           r.PriceChange24h,
		PriceChangePercentage24h: r.PriceChangePercentage24h,
		LastSyncedAt:             &synced,
	}
}

// AssetPatch is a partial update of an Asset. Nil fields are left unchanged.
type AssetPatch struct {
	Symbol                   *string  `json:"symbol"`
	Name                     *string  `json:"name"`
	Image                    *string  `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int64   `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// Fields returns the patch as a column -> value map containing only the
// fields that are set. Column names match the gorm columns and bson keys.
func (p AssetPatch) Fields() map[string]any {
	fields := make(map[string]any)
	if p.Symbol != nil {
		fields["symbol"] = *p.Symbol
	}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Image != nil {
		fields["image"] = *p.Image
	}
	if p.CurrentPrice != nil {
		fields["current_price"] = *p.CurrentPrice
	}
	if p.MarketCap != nil {
		fields["market_cap"] = *p.MarketCap
	}
	if p.MarketCapRank != nil {
		fields["market_cap_rank"] = *p.MarketCapRank
	}
	if p.TotalVolume != nil {
		fields["total_volume"] = *p.TotalVolume
	}
	if p.High24h != nil {
		fields["high_24h"] = *p.High24h
	}
	if p.Low24h != nil {
		fields["low_24h"] = *p.Low24h
	}
	if p.PriceChange24h != nil {
		fields["price_change_24h"] = *p.PriceChange24h
	}
	if p.PriceChangePercentage24h != nil {
		fields["price_change_percentage_24h"] = *p.PriceChangePercentage24h
	}
	return fields
}

// SortField is a whitelisted column assets can be ordered by.
type SortField string

const (
	SortMarketCap         SortField = "market_cap"
	SortTotalVolume       SortField = "total_volume"
	SortPriceChangePct24h SortField = "price_change_percentage_24h"
	SortCurrentPrice      SortField = "current_price"
	SortMarketCapRank     SortField = "market_cap_rank"
)

// Valid reports whether f is one of the known sort columns.
func (f SortField) Valid() bool {
	switch f {
	case SortMarketCap, SortTotalVolume, SortPriceChangePct24h, SortCurrentPrice, SortMarketCapRank:
		return true
	}
	return false
}

// Float returns a pointer to v. Handy for building records in code and tests.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int64) *int64 {
	return &v
}
