package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	cooldownRemainingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gecko_cooldown_remaining_seconds",
		Help: "Seconds left in the shared upstream cooldown window when last observed",
	})

	cooldownExtensionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gecko_cooldown_extensions_total",
		Help: "Total number of times the shared cooldown window was pushed out",
	})

	cooldownStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gecko_cooldown_store_errors_total",
		Help: "Total number of Redis errors while reading or writing the cooldown",
	}, []string{"op"})
)

// extendScript moves the cooldown deadline forward, never backward.
// KEYS[1] deadline key, KEYS[2] last update key,
// ARGV[1] deadline unix ms, ARGV[2] ttl ms, ARGV[3] now unix ms.
var extendScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local deadline = tonumber(ARGV[1])
if deadline > current then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
  return 1
end
return 0
`)

// Tracker stores the shared cooldown window in Redis. It implements
// gecko.Cooldown.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new cooldown tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the current cooldown state from Redis.
// Returns a zero (inactive) state if no window is stored.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	if t.redis == nil {
		return &CooldownState{}, nil
	}

	values, err := t.redis.MGet(ctx, RedisKeyCooldownUntil, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get cooldown state: %w", err)
	}

	state := &CooldownState{}
	if until, ok := parseMillis(values[0]); ok {
		state.Until = until
	}
	if last, ok := parseMillis(values[1]); ok {
		state.LastUpdate = last
	}

	return state, nil
}

// Remaining returns how long callers must wait before the next upstream
// request. A missing window means no wait.
func (t *Tracker) Remaining(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		cooldownStoreErrorsTotal.WithLabelValues("read").Inc()
		return 0, err
	}

	remaining := state.Remaining(t.now())
	cooldownRemainingSeconds.Set(remaining.Seconds())

	if remaining > 0 {
		t.logger.Debug().
			Dur("remaining", remaining).
			Time("until", state.Until).
			Msg("Shared cooldown active")
	}

	return remaining, nil
}

// Extend pushes the cooldown deadline to now+d unless a later deadline is
// already stored. d is clamped to MaxCooldown.
func (t *Tracker) Extend(ctx context.Context, d time.Duration) error {
	d = clampCooldown(d)
	if d == 0 || t.redis == nil {
		return nil
	}

	now := t.now()
	deadline := now.Add(d)
	ttl := d + time.Second

	moved, err := extendScript.Run(ctx, t.redis,
		[]string{RedisKeyCooldownUntil, RedisKeyLastUpdate},
		deadline.UnixMilli(), ttl.Milliseconds(), now.UnixMilli(),
	).Int()
	if err != nil {
		cooldownStoreErrorsTotal.WithLabelValues("write").Inc()
		return fmt.Errorf("extend cooldown: %w", err)
	}

	if moved == 1 {
		cooldownExtensionsTotal.Inc()
		cooldownRemainingSeconds.Set(d.Seconds())
		t.logger.Warn().
			Dur("cooldown", d).
			Time("until", deadline).
			Msg("Upstream rate limited - shared cooldown extended")
	}

	return nil
}

// Reset clears the cooldown window.
func (t *Tracker) Reset(ctx context.Context) error {
	if t.redis == nil {
		return nil
	}
	if err := t.redis.Del(ctx, RedisKeyCooldownUntil, RedisKeyLastUpdate).Err(); err != nil {
		return fmt.Errorf("reset cooldown: %w", err)
	}
	cooldownRemainingSeconds.Set(0)
	return nil
}

func parseMillis(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
