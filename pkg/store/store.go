// Package store persists assets keyed by their upstream identifier. Two
// backends implement Store: gorm (SQLite or PostgreSQL) and MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when no asset has the requested identifier.
	ErrNotFound = errors.New("asset not found")

	// ErrDuplicate is returned by CreateAsset when the identifier is taken.
	ErrDuplicate = errors.New("asset already exists")

	// ErrInvalidAsset is returned for assets without an identifier.
	ErrInvalidAsset = errors.New("asset identifier is empty")
)

// Supported backend drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// List limits.
const (
	DefaultLimit = 10
	MaxLimit     = 250

	// MaxPage keeps (Page-1)*Limit well inside int range on every platform.
	MaxPage = 1_000_000
)

// Store is the persistence contract shared by all backends.
type Store interface {
	// UpsertAsset inserts the asset or overwrites every synchronized field of
	// the existing one. created reports whether a new row was inserted.
	UpsertAsset(ctx context.Context, asset *market.Asset) (created bool, err error)

	GetAsset(ctx context.Context, id string) (*market.Asset, error)

	// ListAssets returns one page of assets and the total number matching.
	ListAssets(ctx context.Context, query ListQuery) ([]market.Asset, int64, error)

	// TopAssets returns the limit highest assets by field, skipping nulls.
	TopAssets(ctx context.Context, field market.SortField, limit int) ([]market.Asset, error)

	CreateAsset(ctx context.Context, asset *market.Asset) error
	UpdateAsset(ctx context.Context, id string, patch market.AssetPatch) (*market.Asset, error)
	DeleteAsset(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// ListQuery selects a page of assets.
type ListQuery struct {
	Page   int
	Limit  int
	Search string

	// Sort orders descending with nulls last. Empty means market cap.
	Sort market.SortField
}

// Normalize applies defaults and bounds.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	q.Search = strings.TrimSpace(q.Search)
	if !q.Sort.Valid() {
		q.Sort = market.SortMarketCap
	}
	return q
}

// Offset returns the number of rows to skip.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Config selects and configures a backend.
type Config struct {
	Driver string

	// DSN is a file path for sqlite, a connection string for postgres and a
	// mongodb:// URI for mongo.
	DSN string

	// Database names the MongoDB database.
	Database string
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenGorm(DriverSQLite, cfg.DSN, logger)
	case DriverPostgres:
		return OpenGorm(DriverPostgres, cfg.DSN, logger)
	case DriverMongo:
		return OpenMongo(ctx, cfg.DSN, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func validateAsset(asset *market.Asset) error {
	if asset == nil || strings.TrimSpace(asset.ID) == "" {
		return ErrInvalidAsset
	}
	return nil
}
