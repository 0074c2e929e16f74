package gecko

import (
	"math"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries allowed per page after the first
	// attempt. Rate limits and transient failures share this budget.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every computed backoff.
	MaxDelay time.Duration

	// Jitter is the maximum extra fraction added to a backoff (0.1 = up to 10%).
	Jitter float64
}

// DefaultRetryConfig returns the retry configuration tuned for the public
// CoinGecko API limits.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  6 * time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     0.1,
	}
}

// Backoff returns the wait before retry number retry (0-based):
// BaseDelay * 2^retry * (1 + Jitter*r), capped at MaxDelay. r is expected in
// [0, 1). The result never decreases as retry grows.
func (c RetryConfig) Backoff(retry int, r float64) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if r < 0 {
		r = 0
	}
	if r >= 1 {
		r = math.Nextafter(1, 0)
	}

	delay := float64(c.BaseDelay) * math.Pow(2, float64(retry)) * (1 + c.Jitter*r)
	if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// policyState is a state of the per-page retry machine.
type policyState int

const (
	stateFetching policyState = iota
	stateBackoff
	stateSkipped
	stateAborted
	stateDone
)

func (s policyState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateBackoff:
		return "backoff"
	case stateSkipped:
		return "skipped"
	case stateAborted:
		return "aborted"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// decision is the policy's answer to one classified attempt.
type decision struct {
	state policyState
	wait  time.Duration
	err   error
}

// retryPolicy tracks one page's retry budget. It is not safe for
// concurrent use; each FetchPage call owns its own policy.
type retryPolicy struct {
	config  RetryConfig
	random  func() float64
	retries int
	state   policyState
}

func newRetryPolicy(config RetryConfig, random func() float64) *retryPolicy {
	return &retryPolicy{config: config, random: random, state: stateFetching}
}

// next feeds the outcome of an attempt into the machine. retryAfter is the
// server-suggested wait, honored only for rate limiting.
func (p *retryPolicy) next(kind ErrorKind, retryAfter time.Duration) decision {
	d := p.decide(kind, retryAfter)
	p.state = d.state
	return d
}

func (p *retryPolicy) decide(kind ErrorKind, retryAfter time.Duration) decision {
	switch kind {
	case KindSuccess:
		return decision{state: stateDone}
	case KindBadRequestSkippable:
		return decision{state: stateSkipped, err: ErrPageSkipped}
	case KindBadRequestFatal:
		return decision{state: stateAborted, err: ErrUnrecoverable}
	case KindNotFound:
		return decision{state: stateAborted, err: ErrNotFound}
	}

	if p.retries >= p.config.MaxRetries {
		return decision{state: stateAborted, err: ErrRetryExhausted}
	}

	wait := p.config.Backoff(p.retries, p.random())
	if kind == KindRateLimited && retryAfter > 0 {
		wait = retryAfter
	}
	p.retries++

	return decision{state: stateBackoff, wait: wait}
}

// attempts is the number of requests issued so far for the page.
func (p *retryPolicy) attempts() int {
	return p.retries + 1
}
