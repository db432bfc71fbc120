package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Sessions is the session store consumed by the SessionManager
type Sessions interface {
	Insert(ctx context.Context, session *Session) error
	FindByToken(ctx context.Context, authToken string) (*Session, error)
	SetUser(ctx context.Context, authToken string, userID bson.ObjectID) error
	ClearUser(ctx context.Context, authToken string) error
	// DeleteExpired removes sessions past their expiry; used by the
	// cron sweep guarded by the lock manager.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessions struct {
	col *mongo.Collection
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *mongo.Database) Sessions {
	return &sessions{col: db.Collection(CollectionSessions)}
}

func (r *sessions) Insert(ctx context.Context, session *Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	res, err := r.col.InsertOne(ctx, session)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert session")
	}

	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		session.ID = id
	}

	return nil
}

func (r *sessions) FindByToken(ctx context.Context, authToken string) (*Session, error) {
	record := &Session{}
	if err := r.col.FindOne(ctx, bson.M{"auth_token": authToken}).Decode(record); err != nil {
		if IsRecordNotFound(err) {
			return nil, NewRecordNotFound()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve session")
	}

	return record, nil
}

func (r *sessions) SetUser(ctx context.Context, authToken string, userID bson.ObjectID) error {
	return r.updateUser(ctx, authToken, bson.M{"$set": bson.M{"user_id": userID}})
}

func (r *sessions) ClearUser(ctx context.Context, authToken string) error {
	return r.updateUser(ctx, authToken, bson.M{"$unset": bson.M{"user_id": ""}})
}

func (r *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired sessions")
	}

	return res.DeletedCount, nil
}

func (r *sessions) updateUser(ctx context.Context, authToken string, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"auth_token": authToken}, update)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update session user")
	}

	if res.MatchedCount == 0 {
		return NewRecordNotFound().WithMetadata(map[string]any{"auth_token": "[redacted]"})
	}

	return nil
}
