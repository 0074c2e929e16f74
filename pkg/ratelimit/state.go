// Package ratelimit implements a shared upstream cooldown window. When the
// market API answers 429, the wait is stored in Redis so every fetcher
// instance honors it before its next request.
package ratelimit

import (
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "coinsync:rate_limit:cooldown_until"
	RedisKeyLastUpdate    = "coinsync:rate_limit:last_update"
)

// MaxCooldown bounds a single stored cooldown so a bogus Retry-After cannot
// freeze every fetcher indefinitely.
const MaxCooldown = 15 * time.Minute

// CooldownState represents the shared cooldown window.
type CooldownState struct {
	// Until is the moment the upstream may be called again.
	Until time.Time `json:"until"`

	// LastUpdate is when the window was last extended.
	LastUpdate time.Time `json:"last_update"`
}

// Active reports whether the window is still open at now.
func (s *CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns how long callers must still wait at now.
// Returns 0 if the window has passed.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state was last extended more than maxAge ago.
func (s *CooldownState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// clampCooldown limits d to (0, MaxCooldown].
func clampCooldown(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
