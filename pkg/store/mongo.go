package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo defaults.
const (
	DefaultMongoDatabase = "coinsync"
	AssetsCollection     = "assets"
)

// MongoStore is the document backend.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
	now        func() time.Time
}

// OpenMongo connects to MongoDB, verifies the connection and ensures the
// secondary indexes exist.
func OpenMongo(ctx context.Context, uri, database string, logger zerolog.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo requires DATABASE_URL")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(database).Collection(AssetsCollection)

	_, err = collection.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "market_cap", Value: -1}}},
		{Keys: bson.D{{Key: "total_volume", Value: -1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "symbol", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create mongo indexes: %w", err)
	}

	logger.Info().Str("driver", DriverMongo).Str("database", database).Msg("Store connected")

	return &MongoStore{
		client:     client,
		collection: collection,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// UpsertAsset inserts or fully overwrites the asset. created_at is only
// written on insert.
func (s *MongoStore) UpsertAsset(ctx context.Context, asset *market.Asset) (bool, error) {
	if err := validateAsset(asset); err != nil {
		return false, err
	}

	now := s.now()
	update := bson.M{
		"$set":         syncedFields(asset, now),
		"$setOnInsert": bson.M{"created_at": now},
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": asset.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert asset %s: %w", asset.ID, err)
	}

	return result.UpsertedCount == 1, nil
}

// GetAsset returns the asset with the given identifier.
func (s *MongoStore) GetAsset(ctx context.Context, id string) (*market.Asset, error) {
	var asset market.Asset
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&asset)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &asset, nil
}

// ListAssets returns one page of assets matching the query. Descending sort
// places nulls last because MongoDB orders null below numbers.
func (s *MongoStore) ListAssets(ctx context.Context, query ListQuery) ([]market.Asset, int64, error) {
	query = query.Normalize()

	filter := bson.M{}
	if query.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(query.Search), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"symbol": pattern},
		}
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count assets: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: string(query.Sort), Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(query.Offset())).
		SetLimit(int64(query.Limit))

	assets, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list assets: %w", err)
	}
	return assets, total, nil
}

// TopAssets returns the highest assets by field, ignoring nulls.
func (s *MongoStore) TopAssets(ctx context.Context, field market.SortField, limit int) ([]market.Asset, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("invalid sort field %q", field)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	filter := bson.M{string(field): bson.M{"$ne": nil}}
	opts := options.Find().
		SetSort(bson.D{{Key: string(field), Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	assets, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("top assets by %s: %w", field, err)
	}
	return assets, nil
}

// CreateAsset inserts a new asset, failing with ErrDuplicate if it exists.
func (s *MongoStore) CreateAsset(ctx context.Context, asset *market.Asset) error {
	if err := validateAsset(asset); err != nil {
		return err
	}

	now := s.now()
	doc := syncedFields(asset, now)
	doc["_id"] = asset.ID
	doc["created_at"] = now

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create asset %s: %w", asset.ID, err)
	}

	asset.CreatedAt = now
	asset.UpdatedAt = now
	return nil
}

// UpdateAsset applies a partial update and returns the updated asset.
func (s *MongoStore) UpdateAsset(ctx context.Context, id string, patch market.AssetPatch) (*market.Asset, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return s.GetAsset(ctx, id)
	}

	set := bson.M{"updated_at": s.now()}
	for key, value := range fields {
		set[key] = value
	}

	var asset market.Asset
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&asset)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update asset %s: %w", id, err)
	}
	return &asset, nil
}

// DeleteAsset removes the asset with the given identifier.
func (s *MongoStore) DeleteAsset(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the connection to the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]market.Asset, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	assets := make([]market.Asset, 0)
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// syncedFields is the $set document of an upsert: every synchronized field,
// nulls included, so no stale value survives a refresh.
func syncedFields(a *market.Asset, now time.Time) bson.M {
	return bson.M{
		"symbol":                      a.Symbol,
		"name":                        a.Name,
		"image":                       a.Image,
		"current_price":               a.CurrentPrice,
		"market_cap":                  a.MarketCap,
		"market_cap_rank":             a.MarketCapRank,
		"total_volume":                a.TotalVolume,
		"high_24h":                    a.High24h,
		"low_24h":                     a.Low24h,
		"price_change_24h":            a.PriceChange24h,
		"price_change_percentage_24h": a.PriceChangePercentage24h,
		"last_synced_at":              a.LastSyncedAt,
		"updated_at":                  now,
	}
}
