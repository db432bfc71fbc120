package ratelimit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionRateLimits is the counter collection name
var CollectionRateLimits = "rate_limits"

// MongoStore keeps one counter document per (bucket, type, value,
// window) tuple. A TTL index on expires_at reaps stale counters.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		col: db.Collection(CollectionRateLimits),
	}
}

var _ Store = (*MongoStore)(nil)

// EnsureIndexes creates the counter key and expiry indexes
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "bucket", Value: 1},
			{Key: "type", Value: 1},
			{Key: "value", Value: 1},
			{Key: "window_ms", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (s *MongoStore) Get(ctx context.Context, key Key, windowMS int64) (*Counter, error) {
	counter := &Counter{}
	err := s.col.FindOne(ctx, keyFilter(key, windowMS)).Decode(counter)
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func (s *MongoStore) Insert(ctx context.Context, counter *Counter) (bool, error) {
	_, err := s.col.InsertOne(ctx, counter)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MongoStore) Increment(ctx context.Context, key Key, windowMS int64, windowStart time.Time, expiresAt time.Time) (bool, error) {
	filter := keyFilter(key, windowMS)
	filter["window_start"] = windowStart

	res, err := s.col.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"window_count": 1},
		"$set": bson.M{"expires_at": expiresAt},
	})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) Rotate(ctx context.Context, key Key, windowMS int64, observedStart time.Time, next *Counter) (bool, error) {
	filter := keyFilter(key, windowMS)
	filter["window_start"] = observedStart

	res, err := s.col.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"window_start":      next.WindowStart,
			"window_count":      next.WindowCount,
			"prev_window_count": next.PrevWindowCount,
			"expires_at":        next.ExpiresAt,
		},
	})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func keyFilter(key Key, windowMS int64) bson.M {
	return bson.M{
		"bucket":    key.Bucket,
		"type":      key.Type,
		"value":     key.Value,
		"window_ms": windowMS,
	}
}
