package store

import (
	"context"
	"errors"
	"fmt"

	"license-server/internal/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "licenses"

// MongoStore keeps one document per license, keyed by _id = license id.
// Single-document updates are atomic in MongoDB, which is all Store needs.
type MongoStore struct {
	collection *mongo.Collection
}

type MongoOption func(*mongoConfig)

type mongoConfig struct {
	collection string
}

// WithCollection overrides the collection name. Default: "licenses".
func WithCollection(name string) MongoOption {
	return func(c *mongoConfig) {
		c.collection = name
	}
}

// NewMongoStore creates the secondary indexes it needs. The caller owns the
// client lifecycle.
func NewMongoStore(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoStore, error) {
	cfg := mongoConfig{collection: defaultMongoCollection}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &MongoStore{collection: db.Collection(cfg.collection)}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "license_key", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

// ConnectMongo opens a client and pings it.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (s *MongoStore) Insert(ctx context.Context, license *model.License) error {
	_, err := s.collection.InsertOne(ctx, license)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (s *MongoStore) Lookup(ctx context.Context, id string) (*model.License, error) {
	var license model.License
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&license)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	return &license, nil
}

func (s *MongoStore) Revoke(ctx context.Context, id string) (int64, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("revoke license: %w", err)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) TouchLastSeen(ctx context.Context, id string, ts int64) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$max": bson.M{"last_seen": ts}},
	)
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, page, pageSize int) ([]model.License, int64, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "issued_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}
	licenses := []model.License{}
	if err := cursor.All(ctx, &licenses); err != nil {
		return nil, 0, fmt.Errorf("decode licenses: %w", err)
	}
	return licenses, total, nil
}

func (s *MongoStore) Statistics(ctx context.Context, now int64) (*model.LicenseStatistics, error) {
	stats := &model.LicenseStatistics{GeneratedAt: now}

	counts := []struct {
		name   string
		dest   *int64
		filter bson.M
	}{
		{"total", &stats.TotalLicenses, bson.M{}},
		{"revoked", &stats.RevokedLicenses, bson.M{"revoked": true}},
		{"active", &stats.ActiveLicenses, bson.M{"revoked": false, "expires_at": bson.M{"$gte": now}}},
		{"expired", &stats.ExpiredLicenses, bson.M{"revoked": false, "expires_at": bson.M{"$lt": now}}},
		{"expiring", &stats.ExpiringLicenses, bson.M{"revoked": false, "expires_at": bson.M{"$gte": now, "$lte": now + expiringWindow}}},
		{"seen_recently", &stats.SeenRecently, bson.M{"last_seen": bson.M{"$gte": now - recentWindow}}},
	}
	for _, c := range counts {
		n, err := s.collection.CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("count %s licenses: %w", c.name, err)
		}
		*c.dest = n
	}
	return stats, nil
}
