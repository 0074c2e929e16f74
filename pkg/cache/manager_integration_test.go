//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sternrassler/coin-sync/internal/testutil"
)

func TestManager_Integration_SetAndGet(t *testing.T) {
	manager := NewManager(testutil.StartRedis(t), time.Minute)
	ctx := context.Background()

	key := CacheKey{Path: "/api/coins"}
	entry := NewEntry([]byte(`{"coins":[]}`), 200, "application/json", time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(entry.Data) || got.ETag != entry.ETag {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
}

func TestManager_Integration_Miss(t *testing.T) {
	manager := NewManager(testutil.StartRedis(t), time.Minute)

	if _, err := manager.Get(context.Background(), CacheKey{Path: "/missing"}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Integration_TTLExpiry(t *testing.T) {
	manager := NewManager(testutil.StartRedis(t), time.Minute)
	ctx := context.Background()

	key := CacheKey{Path: "/short"}
	entry := NewEntry([]byte("x"), 200, "text/plain", time.Second)
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Integration_Invalidate(t *testing.T) {
	manager := NewManager(testutil.StartRedis(t), time.Minute)
	ctx := context.Background()

	gen, err := manager.Generation(ctx)
	if err != nil || gen != 0 {
		t.Fatalf("Generation() = %d, %v, want 0, nil", gen, err)
	}

	key := CacheKey{Path: "/api/coins", Generation: gen}
	if err := manager.Set(ctx, key, NewEntry([]byte("old"), 200, "text/plain", time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := manager.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	gen, err = manager.Generation(ctx)
	if err != nil || gen != 1 {
		t.Fatalf("Generation() after invalidate = %d, %v, want 1, nil", gen, err)
	}
	if got := promtest.ToFloat64(cacheGeneration); got != 1 {
		t.Errorf("generation gauge = %v, want 1", got)
	}

	if _, err := manager.Get(ctx, CacheKey{Path: "/api/coins", Generation: gen}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() in new generation error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Integration_Delete(t *testing.T) {
	manager := NewManager(testutil.StartRedis(t), time.Minute)
	ctx := context.Background()

	key := CacheKey{Path: "/delete"}
	if err := manager.Set(ctx, key, NewEntry([]byte("x"), 200, "", time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}
}
