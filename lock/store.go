package lock

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionLocks is the mongo collection backing the lock store
const CollectionLocks = "locks"

// Record is the persisted shape of a held lock
type Record struct {
	Resource   string    `bson:"resource"`
	InstanceID string    `bson:"instance_id"`
	AcquiredAt time.Time `bson:"acquired_at"`
}

// MongoStore implements Store on a shared mongo collection. The
// conditional upsert relies on a unique index over resource: when the
// filter excludes the current holder the upsert insert collides and
// the acquisition fails, which is exactly the contention signal we
// want.
type MongoStore struct {
	col *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(CollectionLocks)}
}

// EnsureIndexes creates the unique resource index the acquisition
// algorithm depends on. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "resource", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Acquire performs one atomic conditional upsert: claim the resource
// if we already hold it (idempotent renewal) or the current holder is
// stale past the ttl. A missing document is claimed through the
// upsert insert.
func (s *MongoStore) Acquire(ctx context.Context, resource, instanceID string, now time.Time, ttl time.Duration) (bool, error) {
	filter := bson.M{
		"resource": resource,
		"$or": bson.A{
			bson.M{"instance_id": instanceID},
			bson.M{"acquired_at": bson.M{"$lt": now.Add(-ttl)}},
		},
	}

	update := bson.M{"$set": bson.M{
		"resource":    resource,
		"instance_id": instanceID,
		"acquired_at": now,
	}}

	res, err := s.col.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Another instance holds a live lock.
			return false, nil
		}
		return false, err
	}

	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}

// Release deletes the lock only when this instance still holds it
func (s *MongoStore) Release(ctx context.Context, resource, instanceID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{
		"resource":    resource,
		"instance_id": instanceID,
	})
	return err
}
