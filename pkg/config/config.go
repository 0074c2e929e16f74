// Package config loads the service configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/gecko"
	"github.com/Sternrassler/coin-sync/pkg/logging"
	"github.com/Sternrassler/coin-sync/pkg/pagination"
	"github.com/Sternrassler/coin-sync/pkg/reconcile"
	"github.com/Sternrassler/coin-sync/pkg/scheduler"
	"github.com/Sternrassler/coin-sync/pkg/store"
	"github.com/joho/godotenv"
)

// GeckoConfig configures the upstream fetcher and pagination.
type GeckoConfig struct {
	APIKey     string
	BaseURL    string
	VsCurrency string
	UserAgent  string

	PerPage  int
	MaxPages int

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// PageDelay is the pause between pages. Defaults to BaseDelay.
	PageDelay time.Duration
}

// RedisConfig configures the optional Redis connection. An empty Addr
// disables the shared cooldown and the response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the complete service configuration.
type Config struct {
	Gecko GeckoConfig

	SyncInterval time.Duration
	SyncStrict   bool

	Store store.Config
	Redis RedisConfig

	CacheTTL time.Duration

	Port        string
	LogLevel    string
	LogPretty   bool
	Environment string
}

// Load reads the optional .env files (default ".env"), then the
// environment, and validates the result. Variables already set in the
// environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	p := &parser{}
	retry := gecko.DefaultRetryConfig()
	paging := pagination.DefaultConfig()

	cfg := &Config{
		Gecko: GeckoConfig{
			APIKey:     getEnv("GECKO_API_KEY", ""),
			BaseURL:    getEnv("GECKO_BASE_URL", gecko.DefaultBaseURL),
			VsCurrency: getEnv("GECKO_VS_CURRENCY", "usd"),
			UserAgent:  getEnv("GECKO_USER_AGENT", gecko.DefaultUserAgent),
			PerPage:    p.int("GECKO_PER_PAGE", paging.PerPage),
			MaxPages:   p.int("GECKO_MAX_PAGES", paging.MaxPages),
			MaxRetries: p.int("GECKO_MAX_RETRIES", retry.MaxRetries),
			BaseDelay:  p.duration("GECKO_BASE_DELAY", retry.BaseDelay),
			MaxDelay:   p.duration("GECKO_MAX_DELAY", retry.MaxDelay),
		},
		SyncInterval: p.duration("SYNC_INTERVAL", scheduler.DefaultInterval),
		SyncStrict:   p.bool("SYNC_STRICT", false),
		Store: store.Config{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", store.DriverSQLite)),
			DSN:      getEnv("DATABASE_URL", ""),
			Database: getEnv("MONGO_DATABASE", "coinsync"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", string(logging.LevelInfo)),
		LogPretty:   p.bool("LOG_PRETTY", false),
		Environment: getEnv("ENVIRONMENT", "development"),
	}
	cfg.Gecko.PageDelay = p.duration("GECKO_PAGE_DELAY", cfg.Gecko.BaseDelay)
	cfg.CacheTTL = p.duration("CACHE_TTL", 5*time.Minute)

	if cfg.Store.Driver == store.DriverSQLite && cfg.Store.DSN == "" {
		cfg.Store.DSN = store.DefaultSQLitePath
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required combinations.
func (c *Config) Validate() error {
	var errs []error

	if c.Gecko.PerPage < 1 || c.Gecko.PerPage > store.MaxLimit {
		errs = append(errs, fmt.Errorf("GECKO_PER_PAGE must be within 1..%d (got %d)", store.MaxLimit, c.Gecko.PerPage))
	}
	if c.Gecko.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("GECKO_MAX_PAGES must be >= 0 (got %d)", c.Gecko.MaxPages))
	}
	if c.Gecko.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("GECKO_MAX_RETRIES must be >= 0 (got %d)", c.Gecko.MaxRetries))
	}
	if c.Gecko.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("GECKO_BASE_DELAY must be positive (got %s)", c.Gecko.BaseDelay))
	}
	if c.Gecko.MaxDelay < c.Gecko.BaseDelay {
		errs = append(errs, fmt.Errorf("GECKO_MAX_DELAY (%s) must be >= GECKO_BASE_DELAY (%s)", c.Gecko.MaxDelay, c.Gecko.BaseDelay))
	}
	if c.Gecko.PageDelay < 0 {
		errs = append(errs, fmt.Errorf("GECKO_PAGE_DELAY must not be negative (got %s)", c.Gecko.PageDelay))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL must be positive (got %s)", c.SyncInterval))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive (got %s)", c.CacheTTL))
	}

	switch c.Store.Driver {
	case store.DriverSQLite:
	case store.DriverPostgres, store.DriverMongo:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be one of sqlite, postgres, mongo (got %q)", c.Store.Driver))
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port number (got %q)", c.Port))
	}

	return errors.Join(errs...)
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ClientConfig returns the fetcher configuration. The cooldown is wired
// separately because it depends on Redis.
func (c *Config) ClientConfig() gecko.Config {
	cfg := gecko.DefaultConfig(c.Gecko.APIKey)
	cfg.BaseURL = c.Gecko.BaseURL
	cfg.VsCurrency = c.Gecko.VsCurrency
	cfg.UserAgent = c.Gecko.UserAgent
	cfg.Retry.MaxRetries = c.Gecko.MaxRetries
	cfg.Retry.BaseDelay = c.Gecko.BaseDelay
	cfg.Retry.MaxDelay = c.Gecko.MaxDelay
	return cfg
}

// PaginationConfig returns the driver configuration.
func (c *Config) PaginationConfig() pagination.Config {
	return pagination.Config{
		PerPage:   c.Gecko.PerPage,
		MaxPages:  c.Gecko.MaxPages,
		PageDelay: c.Gecko.PageDelay,
	}
}

// ReconcileMode maps SYNC_STRICT to a writer mode.
func (c *Config) ReconcileMode() reconcile.Mode {
	if c.SyncStrict {
		return reconcile.ModeStrict
	}
	return reconcile.ModeIsolated
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// parser reads typed variables and collects parse errors.
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return defaultValue
	}
	return n
}

func (p *parser) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return defaultValue
	}
	return b
}

// duration accepts Go durations ("90s", "30m") or bare seconds ("6").
func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return defaultValue
	}
	return d
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
