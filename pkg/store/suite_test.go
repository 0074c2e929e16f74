package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
)

func testAsset(id, name, symbol string, marketCap *float64) *market.Asset {
	synced := time.Now().UTC()
	return &market.Asset{
		ID:            id,
		Name:          name,
		Symbol:        symbol,
		Image:         "https://img.example/" + id + ".png",
		CurrentPrice:  market.Float(1.5),
		MarketCap:     marketCap,
		TotalVolume:   market.Float(100),
		MarketCapRank: market.Int(1),
		LastSyncedAt:  &synced,
	}
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("upsert creates then overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.UpsertAsset(ctx, testAsset("bitcoin", "Bitcoin", "btc", market.Float(1000)))
		if err != nil {
			t.Fatalf("UpsertAsset() error = %v", err)
		}
		if !created {
			t.Error("first UpsertAsset() created = false, want true")
		}

		first, err := s.GetAsset(ctx, "bitcoin")
		if err != nil {
			t.Fatalf("GetAsset() error = %v", err)
		}

		fresh := testAsset("bitcoin", "Bitcoin", "btc", market.Float(2000))
		fresh.CurrentPrice = nil
		created, err = s.UpsertAsset(ctx, fresh)
		if err != nil {
			t.Fatalf("second UpsertAsset() error = %v", err)
		}
		if created {
			t.Error("second UpsertAsset() created = true, want false")
		}

		got, err := s.GetAsset(ctx, "bitcoin")
		if err != nil {
			t.Fatalf("GetAsset() error = %v", err)
		}
		if got.MarketCap == nil || *got.MarketCap != 2000 {
			t.Errorf("MarketCap = %v, want 2000", got.MarketCap)
		}
		if got.CurrentPrice != nil {
			t.Errorf("CurrentPrice = %v, want nil (null overwrites)", *got.CurrentPrice)
		}
		if diff := got.CreatedAt.Sub(first.CreatedAt); diff > time.Second || diff < -time.Second {
			t.Errorf("CreatedAt changed from %v to %v", first.CreatedAt, got.CreatedAt)
		}
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		batch := []*market.Asset{
			testAsset("a", "Alpha", "aa", market.Float(3)),
			testAsset("b", "Beta", "bb", market.Float(2)),
			testAsset("c", "Gamma", "cc", market.Float(1)),
		}
		for round := 0; round < 2; round++ {
			for _, a := range batch {
				copied := *a
				if _, err := s.UpsertAsset(ctx, &copied); err != nil {
					t.Fatalf("round %d: UpsertAsset(%s) error = %v", round, a.ID, err)
				}
			}
		}

		_, total, err := s.ListAssets(ctx, ListQuery{})
		if err != nil {
			t.Fatalf("ListAssets() error = %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})

	t.Run("empty identifier is rejected", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.UpsertAsset(context.Background(), testAsset("", "Nothing", "no", nil)); !errors.Is(err, ErrInvalidAsset) {
			t.Errorf("UpsertAsset() error = %v, want ErrInvalidAsset", err)
		}
		if err := s.CreateAsset(context.Background(), testAsset(" ", "Nothing", "no", nil)); !errors.Is(err, ErrInvalidAsset) {
			t.Errorf("CreateAsset() error = %v, want ErrInvalidAsset", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.GetAsset(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetAsset() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list paginates searches and sorts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seed := []*market.Asset{
			testAsset("bitcoin", "Bitcoin", "btc", market.Float(1000)),
			testAsset("wrapped-bitcoin", "Wrapped Bitcoin", "wbtc", market.Float(10)),
			testAsset("ethereum", "Ethereum", "eth", market.Float(500)),
			testAsset("unknown", "Unknown", "unk", nil),
			testAsset("percent", "100% Coin", "pct", market.Float(1)),
		}
		for _, a := range seed {
			if _, err := s.UpsertAsset(ctx, a); err != nil {
				t.Fatalf("UpsertAsset(%s) error = %v", a.ID, err)
			}
		}

		assets, total, err := s.ListAssets(ctx, ListQuery{Page: 1, Limit: 2})
		if err != nil {
			t.Fatalf("ListAssets() error = %v", err)
		}
		if total != 5 || len(assets) != 2 {
			t.Fatalf("total = %d, len = %d, want 5 and 2", total, len(assets))
		}
		if assets[0].ID != "bitcoin" || assets[1].ID != "ethereum" {
			t.Errorf("page 1 = [%s %s], want [bitcoin ethereum]", assets[0].ID, assets[1].ID)
		}

		assets, _, err = s.ListAssets(ctx, ListQuery{Page: 3, Limit: 2})
		if err != nil {
			t.Fatalf("ListAssets(page 3) error = %v", err)
		}
		if len(assets) != 1 || assets[0].ID != "unknown" {
			t.Errorf("last page = %v, want only the null market cap asset", ids(assets))
		}

		assets, total, err = s.ListAssets(ctx, ListQuery{Search: "BITCOIN"})
		if err != nil {
			t.Fatalf("ListAssets(search) error = %v", err)
		}
		if total != 2 || len(assets) != 2 {
			t.Errorf("search total = %d, ids = %v, want 2 bitcoin assets", total, ids(assets))
		}

		_, total, err = s.ListAssets(ctx, ListQuery{Search: "ETH"})
		if err != nil {
			t.Fatalf("ListAssets(symbol search) error = %v", err)
		}
		if total != 1 {
			t.Errorf("symbol search total = %d, want 1", total)
		}

		_, total, err = s.ListAssets(ctx, ListQuery{Search: "%"})
		if err != nil {
			t.Fatalf("ListAssets(%%) error = %v", err)
		}
		if total != 1 {
			t.Errorf("literal %% search total = %d, want 1", total)
		}
	})

	t.Run("top skips nulls", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, a := range []*market.Asset{
			testAsset("small", "Small", "sm", market.Float(1)),
			testAsset("big", "Big", "bg", market.Float(100)),
			testAsset("null", "Null", "nl", nil),
			testAsset("mid", "Mid", "md", market.Float(50)),
		} {
			if _, err := s.UpsertAsset(ctx, a); err != nil {
				t.Fatalf("UpsertAsset(%s) error = %v", a.ID, err)
			}
		}

		top, err := s.TopAssets(ctx, market.SortMarketCap, 10)
		if err != nil {
			t.Fatalf("TopAssets() error = %v", err)
		}
		want := []string{"big", "mid", "small"}
		if got := ids(top); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
			t.Errorf("TopAssets() = %v, want %v", got, want)
		}

		top, err = s.TopAssets(ctx, market.SortMarketCap, 1)
		if err != nil {
			t.Fatalf("TopAssets(1) error = %v", err)
		}
		if len(top) != 1 || top[0].ID != "big" {
			t.Errorf("TopAssets(1) = %v, want [big]", ids(top))
		}

		if _, err := s.TopAssets(ctx, market.SortField("name; DROP TABLE assets"), 5); err == nil {
			t.Error("TopAssets(invalid) error = nil, want error")
		}
	})

	t.Run("create rejects duplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.CreateAsset(ctx, testAsset("solana", "Solana", "sol", nil)); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
		if err := s.CreateAsset(ctx, testAsset("solana", "Solana", "sol", nil)); !errors.Is(err, ErrDuplicate) {
			t.Errorf("second CreateAsset() error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("update is partial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.UpsertAsset(ctx, testAsset("cardano", "Cardano", "ada", market.Float(42))); err != nil {
			t.Fatalf("UpsertAsset() error = %v", err)
		}

		name := "Cardano Renamed"
		updated, err := s.UpdateAsset(ctx, "cardano", market.AssetPatch{Name: &name})
		if err != nil {
			t.Fatalf("UpdateAsset() error = %v", err)
		}
		if updated.Name != name {
			t.Errorf("Name = %q, want %q", updated.Name, name)
		}
		if updated.MarketCap == nil || *updated.MarketCap != 42 {
			t.Errorf("MarketCap = %v, want untouched 42", updated.MarketCap)
		}
		if updated.Symbol != "ada" {
			t.Errorf("Symbol = %q, want untouched ada", updated.Symbol)
		}

		if _, err := s.UpdateAsset(ctx, "missing", market.AssetPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateAsset(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.UpsertAsset(ctx, testAsset("dogecoin", "Dogecoin", "doge", nil)); err != nil {
			t.Fatalf("UpsertAsset() error = %v", err)
		}
		if err := s.DeleteAsset(ctx, "dogecoin"); err != nil {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		if _, err := s.GetAsset(ctx, "dogecoin"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetAsset() after delete error = %v, want ErrNotFound", err)
		}
		if err := s.DeleteAsset(ctx, "dogecoin"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteAsset() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func ids(assets []market.Asset) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.ID)
	}
	return out
}
