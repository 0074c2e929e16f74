package market

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecord_DecodeNullableFields(t *testing.T) {
	body := `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"https://img/btc.png",
		"current_price":64000.5,"market_cap":1260000000000,"market_cap_rank":1,
		"total_volume":null,"high_24h":65000,"low_24h":63000,
		"price_change_24h":-120.25,"price_change_percentage_24h":-0.18,
		"sparkline_in_7d":null}]`

	var records []Record
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	r := records[0]
	if r.ID != "bitcoin" || r.Symbol != "btc" {
		t.Errorf("identity = %q/%q, want bitcoin/btc", r.ID, r.Symbol)
	}
	if r.TotalVolume != nil {
		t.Errorf("TotalVolume = %v, want nil", *r.TotalVolume)
	}
	if r.MarketCapRank == nil || *r.MarketCapRank != 1 {
		t.Errorf("MarketCapRank = %v, want 1", r.MarketCapRank)
	}
	if r.PriceChange24h == nil || *r.PriceChange24h != -120.25 {
		t.Errorf("PriceChange24h = %v, want -120.25", r.PriceChange24h)
	}
}

func TestAssetFromRecord_CopiesNils(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	r := Record{ID: "eth", Symbol: "eth", Name: "Ethereum", CurrentPrice: Float(3000)}

	a := AssetFromRecord(r, now)

	if a.ID != "eth" || a.Name != "Ethereum" {
		t.Errorf("identity not copied: %+v", a)
	}
	if a.CurrentPrice == nil || *a.CurrentPrice != 3000 {
		t.Errorf("CurrentPrice = %v, want 3000", a.CurrentPrice)
	}
	if a.MarketCap != nil {
		t.Errorf("MarketCap = %v, want nil", *a.MarketCap)
	}
	if a.LastSyncedAt == nil || !a.LastSyncedAt.Equal(now) || a.LastSyncedAt.Location() != time.UTC {
		t.Errorf("LastSyncedAt = %v, want %v in UTC", a.LastSyncedAt, now)
	}
}

func TestAssetPatch_Fields(t *testing.T) {
	name := "Renamed"
	p := AssetPatch{Name: &name, MarketCapRank: Int(7)}

	fields := p.Fields()
	if len(fields) != 2 {
		t.Fatalf("len(fields) = %d, want 2: %v", len(fields), fields)
	}
	if fields["name"] != "Renamed" {
		t.Errorf("name = %v, want Renamed", fields["name"])
	}
	if fields["market_cap_rank"] != int64(7) {
		t.Errorf("market_cap_rank = %v, want 7", fields["market_cap_rank"])
	}
}

func TestSortField_Valid(t *testing.T) {
	tests := []struct {
		field SortField
		want  bool
	}{
		{SortMarketCap, true},
		{SortTotalVolume, true},
		{SortPriceChangePct24h, true},
		{"name; DROP TABLE assets", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.field.Valid(); got != tt.want {
			t.Errorf("SortField(%q).Valid() = %v, want %v", tt.field, got, tt.want)
		}
	}
}
