package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewManager(t *testing.T) {
	client := unreachableRedis(t)

	manager := NewManager(client, 0)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", manager.TTL(), DefaultTTL)
	}

	if got := NewManager(client, time.Minute).TTL(); got != time.Minute {
		t.Errorf("TTL() = %v, want 1m", got)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_SetNilEntry(t *testing.T) {
	manager := NewManager(unreachableRedis(t), time.Minute)

	if err := manager.Set(context.Background(), CacheKey{Path: "/x"}, nil); err == nil {
		t.Error("Set(nil) error = nil, want error")
	}
}

func TestManager_SetExpiredEntryIsNoop(t *testing.T) {
	manager := NewManager(unreachableRedis(t), time.Minute)
	entry := &CacheEntry{Data: []byte("x"), Expires: time.Now().Add(-time.Second)}

	// Expired entries never reach redis, so no connection error surfaces.
	if err := manager.Set(context.Background(), CacheKey{Path: "/x"}, entry); err != nil {
		t.Errorf("Set(expired) error = %v, want nil", err)
	}
}

func TestManager_UnreachableRedis(t *testing.T) {
	manager := NewManager(unreachableRedis(t), time.Minute)
	ctx := context.Background()

	if _, err := manager.Get(ctx, CacheKey{Path: "/x"}); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want connection error", err)
	}
	if _, err := manager.Generation(ctx); err == nil {
		t.Error("Generation() error = nil, want connection error")
	}
	if err := manager.Invalidate(ctx); err == nil {
		t.Error("Invalidate() error = nil, want connection error")
	}
}
