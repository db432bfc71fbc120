package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Tokens is the single-use token store shared by the email
// verification and password reset flows. A token is live when it is
// present and unexpired; Consume deletes it so a second attempt fails.
type Tokens[T any] interface {
	Create(ctx context.Context, userID bson.ObjectID, email string, ttl time.Duration) (T, error)
	FindLive(ctx context.Context, token string, now time.Time) (T, error)
	// LatestForUser returns the most recently issued token for the user.
	LatestForUser(ctx context.Context, userID bson.ObjectID) (T, error)
	Consume(ctx context.Context, token string) (bool, error)
	DeleteForUser(ctx context.Context, userID bson.ObjectID) (int64, error)
}

// tokenHandlers adapts the generic repository to a concrete token model
type tokenHandlers[T any] struct {
	NewRecord func() T
	Fill      func(record T, token string, userID bson.ObjectID, email string, expiresAt, createdAt time.Time)
	SetID     func(record T, id bson.ObjectID)
}

type tokens[T any] struct {
	col      *mongo.Collection
	handlers tokenHandlers[T]
}

func NewVerificationTokensRepository(db *mongo.Database) Tokens[*VerificationToken] {
	return &tokens[*VerificationToken]{
		col: db.Collection(CollectionVerificationTokens),
		handlers: tokenHandlers[*VerificationToken]{
			NewRecord: func() *VerificationToken { return &VerificationToken{} },
			Fill: func(record *VerificationToken, token string, userID bson.ObjectID, email string, expiresAt, createdAt time.Time) {
				record.Token = token
				record.UserID = userID
				record.Email = email
				record.ExpiresAt = expiresAt
				record.CreatedAt = createdAt
			},
			SetID: func(record *VerificationToken, id bson.ObjectID) {
				record.ID = id
			},
		},
	}
}

func NewPasswordResetsRepository(db *mongo.Database) Tokens[*PasswordResetToken] {
	return &tokens[*PasswordResetToken]{
		col: db.Collection(CollectionPasswordResets),
		handlers: tokenHandlers[*PasswordResetToken]{
			NewRecord: func() *PasswordResetToken { return &PasswordResetToken{} },
			Fill: func(record *PasswordResetToken, token string, userID bson.ObjectID, email string, expiresAt, createdAt time.Time) {
				record.Token = token
				record.UserID = userID
				record.Email = email
				record.ExpiresAt = expiresAt
				record.CreatedAt = createdAt
			},
			SetID: func(record *PasswordResetToken, id bson.ObjectID) {
				record.ID = id
			},
		},
	}
}

func (r *tokens[T]) Create(ctx context.Context, userID bson.ObjectID, email string, ttl time.Duration) (T, error) {
	var zero T

	now := time.Now()
	record := r.handlers.NewRecord()
	r.handlers.Fill(record, NewAuthToken(), userID, email, now.Add(ttl), now)

	res, err := r.col.InsertOne(ctx, record)
	if err != nil {
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create token")
	}

	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		r.handlers.SetID(record, id)
	}

	return record, nil
}

func (r *tokens[T]) FindLive(ctx context.Context, token string, now time.Time) (T, error) {
	record := r.handlers.NewRecord()

	err := r.col.FindOne(ctx, bson.M{
		"token":      token,
		"expires_at": bson.M{"$gt": now},
	}).Decode(record)
	if err != nil {
		var zero T
		if IsRecordNotFound(err) {
			return zero, NewRecordNotFound()
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve token")
	}

	return record, nil
}

func (r *tokens[T]) LatestForUser(ctx context.Context, userID bson.ObjectID) (T, error) {
	record := r.handlers.NewRecord()

	err := r.col.FindOne(ctx, bson.M{"user_id": userID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(record)
	if err != nil {
		var zero T
		if IsRecordNotFound(err) {
			return zero, NewRecordNotFound()
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve latest token")
	}

	return record, nil
}

func (r *tokens[T]) Consume(ctx context.Context, token string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"token": token})
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}

	return res.DeletedCount > 0, nil
}

func (r *tokens[T]) DeleteForUser(ctx context.Context, userID bson.ObjectID) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user tokens")
	}

	return res.DeletedCount, nil
}
