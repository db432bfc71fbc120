package identity

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Users is the user store consumed by the authentication flows
type Users interface {
	GetByID(ctx context.Context, id bson.ObjectID) (*User, error)
	// FindByEmail looks up a user holding the address, excluding
	// deleted accounts so released addresses can be reused.
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByAuthProviderID(ctx context.Context, provider, providerID string) (*User, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	Create(ctx context.Context, user *User) (*User, error)
	// MarkEmailVerified flips the matching address to verified only if
	// it is currently unverified; reports whether a write happened.
	MarkEmailVerified(ctx context.Context, id bson.ObjectID, email string) (bool, error)
	SetPasswordHash(ctx context.Context, id bson.ObjectID, hash string) error
	AttachAuthMethod(ctx context.Context, id bson.ObjectID, provider string, method AuthMethod) error
	Disable(ctx context.Context, id bson.ObjectID) (*User, error)
	// Delete transitions the account to deleted and anonymizes it:
	// the handle is rewritten, auth methods and emails are cleared.
	Delete(ctx context.Context, id bson.ObjectID) (*User, error)
}

type users struct {
	col *mongo.Collection
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *mongo.Database) Users {
	return &users{col: db.Collection(CollectionUsers)}
}

func (r *users) GetByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{
		"emails.address": email,
		"status":         bson.M{"$ne": string(UserStatusDeleted)},
	})
}

func (r *users) FindByAuthProviderID(ctx context.Context, provider, providerID string) (*User, error) {
	field := fmt.Sprintf("auth_methods.%s.id", provider)
	return r.findOne(ctx, bson.M{
		field:    providerID,
		"status": bson.M{"$ne": string(UserStatusDeleted)},
	})
}

func (r *users) HandleExists(ctx context.Context, handle string) (bool, error) {
	err := r.col.FindOne(ctx, bson.M{"handle": handle}).Err()
	if err == nil {
		return true, nil
	}
	if IsRecordNotFound(err) {
		return false, nil
	}
	return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check handle availability")
}

func (r *users) Create(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user)

	res, err := r.col.InsertOne(ctx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		user.ID = id
	}

	return user, nil
}

func (r *users) MarkEmailVerified(ctx context.Context, id bson.ObjectID, email string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"emails": bson.M{"$elemMatch": bson.M{
				"address":  email,
				"verified": false,
			}},
		},
		bson.M{"$set": bson.M{
			"emails.$.verified": true,
			"updated_at":        time.Now(),
		}},
	)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
	}

	return res.ModifiedCount > 0, nil
}

func (r *users) SetPasswordHash(ctx context.Context, id bson.ObjectID, hash string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": string(UserStatusDeleted)}},
		bson.M{"$set": bson.M{
			"auth_methods.password.hash": hash,
			"updated_at":                 time.Now(),
		}},
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set password hash")
	}

	if res.MatchedCount == 0 {
		return NewRecordNotFound().WithMetadata(map[string]any{"id": id.Hex()})
	}

	return nil
}

func (r *users) AttachAuthMethod(ctx context.Context, id bson.ObjectID, provider string, method AuthMethod) error {
	field := fmt.Sprintf("auth_methods.%s", provider)
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			field:        method,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to attach auth method")
	}

	if res.MatchedCount == 0 {
		return NewRecordNotFound().WithMetadata(map[string]any{"id": id.Hex()})
	}

	return nil
}

func (r *users) Disable(ctx context.Context, id bson.ObjectID) (*User, error) {
	now := time.Now()
	return r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(UserStatusActive)},
		bson.M{"$set": bson.M{
			"status":      string(UserStatusDisabled),
			"disabled_at": now,
			"updated_at":  now,
		}},
	)
}

func (r *users) Delete(ctx context.Context, id bson.ObjectID) (*User, error) {
	now := time.Now()
	return r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": string(UserStatusDeleted)}},
		bson.M{
			"$set": bson.M{
				"status":     string(UserStatusDeleted),
				"handle":     AnonymizedHandle(id),
				"deleted_at": now,
				"updated_at": now,
			},
			"$unset": bson.M{
				"auth_methods": "",
				"emails":       "",
				"phone":        "",
			},
		},
	)
}

func (r *users) findOne(ctx context.Context, filter bson.M) (*User, error) {
	record := &User{}
	if err := r.col.FindOne(ctx, filter).Decode(record); err != nil {
		if IsRecordNotFound(err) {
			return nil, NewRecordNotFound()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	record.EnsureStatus()
	return record, nil
}

func (r *users) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*User, error) {
	record := &User{}
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(record)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, NewRecordNotFound()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	return record, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}
