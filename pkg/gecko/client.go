// Package gecko fetches paged market listings and market lookups from the
// CoinGecko API with rate-limit aware retries and exponential backoff.
package gecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coin-sync/internal/clock"
	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	geckoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gecko_requests_total",
		Help: "Total upstream requests by HTTP status",
	}, []string{"status"})

	geckoRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gecko_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	geckoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gecko_errors_total",
		Help: "Total upstream errors by kind",
	}, []string{"kind"})

	geckoRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gecko_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	geckoRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gecko_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120},
	}, []string{"error_class"})

	geckoRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gecko_retry_exhausted_total",
		Help: "Total number of requests whose retry budget was exhausted by error class",
	}, []string{"error_class"})
)

// DefaultBaseURL is the public CoinGecko v3 API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// DefaultUserAgent is a browser-like user agent; the public API rejects
// some bare client agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Cooldown is a throttle window shared between processes. When the upstream
// rate-limits us, the wait is recorded so every fetcher backs off together.
type Cooldown interface {
	Remaining(ctx context.Context) (time.Duration, error)
	Extend(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without an endpoint path.
	BaseURL string

	// APIKey is sent in APIKeyHeader. Without it FetchPage makes no requests.
	APIKey       string
	APIKeyHeader string

	UserAgent  string
	VsCurrency string
	Order      string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	Retry RetryConfig

	// Cooldown is optional.
	Cooldown Cooldown

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration matching the public API defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		APIKey:       apiKey,
		APIKeyHeader: "x-cg-api-key",
		UserAgent:    DefaultUserAgent,
		VsCurrency:   "usd",
		Order:        "market_cap_desc",
		Timeout:      30 * time.Second,
		Retry:        DefaultRetryConfig(),
	}
}

// Client calls the market API. Every request goes through the same retry
// policy and shared cooldown.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	random     func() float64
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "x-cg-api-key"
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	if cfg.Order == "" {
		cfg.Order = "market_cap_desc"
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < 0 {
		return nil, fmt.Errorf("retry delays must not be negative")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		config:     cfg,
		random:     rand.Float64,
		now:        time.Now,
		logger:     log.With().Str("component", "gecko-client").Logger(),
	}, nil
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.config.APIKey != ""
}

// attempt is the raw result of one HTTP round trip.
type attempt struct {
	records    []market.Record
	kind       ErrorKind
	statusCode int
	message    string
	retryAfter time.Duration
}

// MarketsPath is the paged listing endpoint.
const MarketsPath = "/coins/markets"

// call describes one logical upstream request and how to decode its body.
type call struct {
	path  string
	query url.Values

	// page is set for listing requests only.
	page int

	// notFoundFinal makes 404 a terminal answer instead of a transient one.
	notFoundFinal bool

	decode func(body []byte) error
}

func (cl call) log(event *zerolog.Event) *zerolog.Event {
	if cl.page > 0 {
		return event.Int("page", cl.page)
	}
	return event.Str("endpoint", cl.path)
}

// FetchPage fetches one page of the market listing, retrying rate limits and
// transient failures with backoff. It returns a *FetchError wrapping
// ErrPageSkipped, ErrUnrecoverable, ErrRetryExhausted or ErrContextCancelled
// when the page could not be fetched.
//
// Without an API key no request is made and an empty page is returned.
func (c *Client) FetchPage(ctx context.Context, page, perPage int) ([]market.Record, error) {
	if !c.HasCredentials() {
		c.logger.Error().Int("page", page).Msg("Gecko API key is not configured - skipping fetch")
		return nil, nil
	}

	q := url.Values{}
	q.Set("vs_currency", c.config.VsCurrency)
	q.Set("order", c.config.Order)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")

	var records []market.Record
	err := c.fetch(ctx, call{
		path:  MarketsPath,
		query: q,
		page:  page,
		decode: func(body []byte) error {
			return json.Unmarshal(body, &records)
		},
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fetch runs the retry policy around one call.
func (c *Client) fetch(ctx context.Context, cl call) error {
	policy := newRetryPolicy(c.config.Retry, c.random)

	for {
		if err := c.waitCooldown(ctx, cl); err != nil {
			return c.cancelled(cl, policy, err)
		}

		res, err := c.do(ctx, cl)
		if err != nil && ctx.Err() != nil {
			return c.cancelled(cl, policy, ctx.Err())
		}

		d := policy.next(res.kind, res.retryAfter)

		switch d.state {
		case stateDone:
			if policy.retries > 0 {
				cl.log(c.logger.Info()).
					Int("attempt", policy.attempts()).
					Msg("Request succeeded after retry")
			}
			return nil

		case stateSkipped:
			geckoErrorsTotal.WithLabelValues(string(res.kind)).Inc()
			cl.log(c.logger.Warn()).
				Int("status_code", res.statusCode).
				Str("message", res.message).
				Msg("Invalid parameter - skipping")
			return c.fetchError(cl, policy, res, d.err)

		case stateAborted:
			geckoErrorsTotal.WithLabelValues(string(res.kind)).Inc()
			if d.err == ErrRetryExhausted {
				geckoRetryExhaustedTotal.WithLabelValues(string(res.kind)).Inc()
			}
			event := c.logger.Error()
			if res.kind == KindNotFound {
				event = c.logger.Debug()
			}
			cl.log(event).
				Int("status_code", res.statusCode).
				Str("error_class", string(res.kind)).
				Int("attempt", policy.attempts()).
				Str("message", res.message).
				Msg("Request aborted")
			return c.fetchError(cl, policy, res, d.err)

		case stateBackoff:
			geckoErrorsTotal.WithLabelValues(string(res.kind)).Inc()
			geckoRetriesTotal.WithLabelValues(string(res.kind)).Inc()
			geckoRetryBackoffSeconds.WithLabelValues(string(res.kind)).Observe(d.wait.Seconds())

			if res.kind == KindRateLimited && c.config.Cooldown != nil {
				if err := c.config.Cooldown.Extend(ctx, d.wait); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to record shared cooldown")
				}
			}

			cl.log(c.logger.Warn()).
				Int("status_code", res.statusCode).
				Str("error_class", string(res.kind)).
				Int("attempt", policy.retries).
				Int("max_retries", c.config.Retry.MaxRetries).
				Dur("backoff", d.wait).
				Msg("Retrying after backoff")

			if err := clock.Sleep(ctx, d.wait); err != nil {
				cl.log(c.logger.Warn()).Msg("Context cancelled during retry backoff")
				return c.cancelled(cl, policy, err)
			}
		}
	}
}

// do performs and classifies a single request.
func (c *Client) do(ctx context.Context, cl call) (attempt, error) {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return attempt{kind: KindTransient, message: err.Error()}, err
	}

	cl.log(c.logger.Debug()).Str("query", cl.query.Encode()).Msg("Requesting upstream")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	geckoRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		geckoRequestsTotal.WithLabelValues("network_error").Inc()
		return attempt{kind: Classify(0, nil, err), message: err.Error()}, err
	}
	defer resp.Body.Close()

	geckoRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attempt{kind: KindTransient, statusCode: resp.StatusCode, message: err.Error()}, err
	}

	res := attempt{
		kind:       Classify(resp.StatusCode, body, nil),
		statusCode: resp.StatusCode,
	}
	if cl.notFoundFinal && resp.StatusCode == http.StatusNotFound {
		res.kind = KindNotFound
	}

	switch res.kind {
	case KindSuccess:
		if err := cl.decode(body); err != nil {
			res.kind = KindTransient
			res.message = fmt.Sprintf("decode body: %v", err)
			return res, nil
		}
	case KindRateLimited:
		res.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		res.message = errorMessage(body)
	default:
		res.message = errorMessage(body)
	}

	return res, nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	u := *c.baseURL
	u.Path = u.Path + cl.path
	u.RawPath = ""
	u.RawQuery = cl.query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)

	return req, nil
}

// waitCooldown sleeps out a shared throttle window. Cooldown store errors are
// logged and ignored.
func (c *Client) waitCooldown(ctx context.Context, cl call) error {
	if c.config.Cooldown == nil {
		return ctx.Err()
	}

	remaining, err := c.config.Cooldown.Remaining(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read shared cooldown")
		return ctx.Err()
	}
	if remaining <= 0 {
		return ctx.Err()
	}

	cl.log(c.logger.Info()).
		Dur("wait", remaining).
		Msg("Waiting for shared upstream cooldown")

	return clock.Sleep(ctx, remaining)
}

func (c *Client) fetchError(cl call, policy *retryPolicy, res attempt, err error) *FetchError {
	return &FetchError{
		Page:       cl.page,
		Endpoint:   cl.path,
		StatusCode: res.statusCode,
		Kind:       res.kind,
		Attempts:   policy.attempts(),
		Message:    res.message,
		Err:        err,
	}
}

func (c *Client) cancelled(cl call, policy *retryPolicy, cause error) *FetchError {
	return &FetchError{
		Page:     cl.page,
		Endpoint: cl.path,
		Kind:     KindTransient,
		Attempts: policy.attempts(),
		Message:  cause.Error(),
		Err:      ErrContextCancelled,
	}
}
