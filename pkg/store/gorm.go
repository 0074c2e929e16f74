package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultSQLitePath is used when no DSN is configured for sqlite.
const DefaultSQLitePath = "data/coinsync.db"

// GormStore is the relational backend (SQLite or PostgreSQL).
type GormStore struct {
	db     *gorm.DB
	driver string
	logger zerolog.Logger
}

// OpenGorm connects to SQLite or PostgreSQL and migrates the assets table.
func OpenGorm(driver, dsn string, logger zerolog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector

	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres requires DATABASE_URL")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logger),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows one writer at a time.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&market.Asset{}); err != nil {
		return nil, fmt.Errorf("migrate assets: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("Store connected")

	return &GormStore{db: db, driver: driver, logger: logger}, nil
}

// UpsertAsset inserts or fully overwrites the asset. CreatedAt of an
// existing row is preserved.
func (s *GormStore) UpsertAsset(ctx context.Context, asset *market.Asset) (bool, error) {
	if err := validateAsset(asset); err != nil {
		return false, err
	}

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&market.Asset{}).Where("id = ?", asset.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check asset %s: %w", asset.ID, err)
		}
		created = count == 0

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(asset).Error
		if err != nil {
			return fmt.Errorf("upsert asset %s: %w", asset.ID, err)
		}
		return nil
	})

	return created, err
}

// GetAsset returns the asset with the given identifier.
func (s *GormStore) GetAsset(ctx context.Context, id string) (*market.Asset, error) {
	var asset market.Asset
	err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &asset, nil
}

// ListAssets returns one page of assets matching the query.
func (s *GormStore) ListAssets(ctx context.Context, query ListQuery) ([]market.Asset, int64, error) {
	query = query.Normalize()

	base := s.db.WithContext(ctx).Model(&market.Asset{})
	if query.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(query.Search)) + "%"
		base = base.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(symbol) LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	var assets []market.Asset
	err := base.Session(&gorm.Session{}).
		Order(nullsLast(query.Sort)).
		Order("id").
		Offset(query.Offset()).
		Limit(query.Limit).
		Find(&assets).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}

	return assets, total, nil
}

// TopAssets returns the highest assets by field, ignoring nulls.
func (s *GormStore) TopAssets(ctx context.Context, field market.SortField, limit int) ([]market.Asset, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("invalid sort field %q", field)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var assets []market.Asset
	err := s.db.WithContext(ctx).
		Where(fmt.Sprintf("%s IS NOT NULL", field)).
		Order(fmt.Sprintf("%s DESC", field)).
		Order("id").
		Limit(limit).
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("top assets by %s: %w", field, err)
	}
	return assets, nil
}

// CreateAsset inserts a new asset, failing with ErrDuplicate if it exists.
func (s *GormStore) CreateAsset(ctx context.Context, asset *market.Asset) error {
	if err := validateAsset(asset); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&market.Asset{}).Where("id = ?", asset.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check asset %s: %w", asset.ID, err)
		}
		if count > 0 {
			return ErrDuplicate
		}

		err := tx.Create(asset).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("create asset %s: %w", asset.ID, err)
		}
		return nil
	})
}

// UpdateAsset applies a partial update and returns the updated asset.
func (s *GormStore) UpdateAsset(ctx context.Context, id string, patch market.AssetPatch) (*market.Asset, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return s.GetAsset(ctx, id)
	}

	result := s.db.WithContext(ctx).Model(&market.Asset{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("update asset %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return s.GetAsset(ctx, id)
}

// DeleteAsset removes the asset with the given identifier.
func (s *GormStore) DeleteAsset(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&market.Asset{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete asset %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nullsLast orders by field descending with NULLs after all values. Works on
// both SQLite and PostgreSQL; field must be whitelisted.
func nullsLast(field market.SortField) string {
	return fmt.Sprintf("%s IS NULL, %s DESC", field, field)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
