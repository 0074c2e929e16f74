package gecko

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.BaseDelay != 6*time.Second {
		t.Errorf("BaseDelay = %v, want 6s", config.BaseDelay)
	}
	if config.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", config.MaxDelay)
	}
	if config.Jitter != 0.1 {
		t.Errorf("Jitter = %v, want 0.1", config.Jitter)
	}
}

func TestBackoff_Values(t *testing.T) {
	config := DefaultRetryConfig()

	tests := []struct {
		retry    int
		random   float64
		expected time.Duration
	}{
		{retry: 0, random: 0, expected: 6 * time.Second},
		{retry: 1, random: 0, expected: 12 * time.Second},
		{retry: 2, random: 0, expected: 24 * time.Second},
		{retry: 3, random: 0, expected: 48 * time.Second},
		{retry: 4, random: 0, expected: 60 * time.Second},
		{retry: 40, random: 0.99, expected: 60 * time.Second},
	}

	for _, tt := range tests {
		if got := config.Backoff(tt.retry, tt.random); got != tt.expected {
			t.Errorf("Backoff(%d, %v) = %v, want %v", tt.retry, tt.random, got, tt.expected)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	config := DefaultRetryConfig()

	got := config.Backoff(0, 0.5)
	if got < 6*time.Second || got > 6600*time.Millisecond {
		t.Errorf("Backoff(0, 0.5) = %v, want within [6s, 6.6s]", got)
	}
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	config := DefaultRetryConfig()
	randoms := []float64{0, 0.25, 0.5, 0.999999}

	// Worst case for monotonicity: maximum jitter at n, none at n+1.
	for retry := 0; retry < 20; retry++ {
		for _, r := range randoms {
			current := config.Backoff(retry, r)
			if current > config.MaxDelay {
				t.Fatalf("Backoff(%d, %v) = %v exceeds cap %v", retry, r, current, config.MaxDelay)
			}
			if next := config.Backoff(retry+1, 0); next < current {
				t.Fatalf("Backoff(%d, 0) = %v < Backoff(%d, %v) = %v", retry+1, next, retry, r, current)
			}
		}
	}
}

func TestBackoff_ClampsInputs(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: 0.1}

	if got := config.Backoff(-3, 0); got != time.Second {
		t.Errorf("Backoff(-3, 0) = %v, want 1s", got)
	}
	if got := config.Backoff(0, -1); got != time.Second {
		t.Errorf("Backoff(0, -1) = %v, want 1s", got)
	}
	if got := config.Backoff(0, 5); got > 1100*time.Millisecond {
		t.Errorf("Backoff(0, 5) = %v, want <= 1.1s", got)
	}
}

func fixedRandom(v float64) func() float64 {
	return func() float64 { return v }
}

func TestRetryPolicy_TerminalKinds(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		state    policyState
		expected error
	}{
		{KindSuccess, stateDone, nil},
		{KindBadRequestSkippable, stateSkipped, ErrPageSkipped},
		{KindBadRequestFatal, stateAborted, ErrUnrecoverable},
		{KindNotFound, stateAborted, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := newRetryPolicy(DefaultRetryConfig(), fixedRandom(0))
			d := p.next(tt.kind, 0)

			if d.state != tt.state {
				t.Errorf("state = %v, want %v", d.state, tt.state)
			}
			if !errors.Is(d.err, tt.expected) && d.err != tt.expected {
				t.Errorf("err = %v, want %v", d.err, tt.expected)
			}
			if p.retries != 0 {
				t.Errorf("retries = %d, want 0 (no retry for terminal kinds)", p.retries)
			}
		})
	}
}

func TestRetryPolicy_ExhaustsSharedBudget(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}
	p := newRetryPolicy(config, fixedRandom(0))

	kinds := []ErrorKind{KindRateLimited, KindTransient, KindRateLimited}
	var previous time.Duration
	for i, kind := range kinds {
		d := p.next(kind, 0)
		if d.state != stateBackoff {
			t.Fatalf("attempt %d: state = %v, want backoff", i, d.state)
		}
		if d.wait < previous {
			t.Errorf("attempt %d: wait %v decreased from %v", i, d.wait, previous)
		}
		previous = d.wait
	}

	d := p.next(KindTransient, 0)
	if d.state != stateAborted || !errors.Is(d.err, ErrRetryExhausted) {
		t.Fatalf("after budget: state = %v err = %v, want aborted/ErrRetryExhausted", d.state, d.err)
	}
	if p.attempts() != 4 {
		t.Errorf("attempts() = %d, want 4", p.attempts())
	}
}

func TestRetryPolicy_HonorsRetryAfterForRateLimit(t *testing.T) {
	config := RetryConfig{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	p := newRetryPolicy(config, fixedRandom(0))
	if d := p.next(KindRateLimited, 42*time.Second); d.wait != 42*time.Second {
		t.Errorf("rate limited wait = %v, want server suggested 42s", d.wait)
	}

	p = newRetryPolicy(config, fixedRandom(0))
	if d := p.next(KindTransient, 42*time.Second); d.wait != time.Second {
		t.Errorf("transient wait = %v, want backoff 1s (Retry-After ignored)", d.wait)
	}
}

func TestRetryPolicy_ZeroBudget(t *testing.T) {
	p := newRetryPolicy(RetryConfig{MaxRetries: 0}, fixedRandom(0))

	d := p.next(KindRateLimited, 0)
	if d.state != stateAborted || !errors.Is(d.err, ErrRetryExhausted) {
		t.Errorf("state = %v err = %v, want immediate exhaustion", d.state, d.err)
	}
}

func TestPolicyState_String(t *testing.T) {
	states := map[policyState]string{
		stateFetching:   "fetching",
		stateBackoff:    "backoff",
		stateSkipped:    "skipped",
		stateAborted:    "aborted",
		stateDone:       "done",
		policyState(99): "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
