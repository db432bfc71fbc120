package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role is a named role assigned to a user
type Role = string

// Permission is a named capability granted through a role
type Permission = string

// UserStatus is the lifecycle status of a user account
type UserStatus string

const (
	// UserStatusActive is a normal, usable account
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled is a temporarily blocked account
	UserStatusDisabled UserStatus = "disabled"
	// UserStatusDeleted is a terminal, anonymized account
	UserStatusDeleted UserStatus = "deleted"
)

// AuthMethodPassword is the provider key for password credentials
const AuthMethodPassword = "password"

// AuthMethod is a single credential blob keyed by provider name.
// Password methods carry a bcrypt hash; OAuth methods carry the
// provider's stable user id.
type AuthMethod struct {
	Hash string `bson:"hash,omitempty" json:"-"`
	ID   string `bson:"id,omitempty" json:"id,omitempty"`
}

// EmailRecord is one address attached to a user
type EmailRecord struct {
	Address  string `bson:"address" json:"address"`
	Verified bool   `bson:"verified" json:"verified"`
}

// User is the user model
type User struct {
	ID          bson.ObjectID         `bson:"_id,omitempty" json:"id,omitempty"`
	// ExternalID is a stable email-derived reference that survives
	// document re-creation, see RegisterUserMessage.UseHashid.
	ExternalID  string                `bson:"external_id,omitempty" json:"external_id,omitempty"`
	Handle      string                `bson:"handle" json:"handle,omitempty"`
	Status      UserStatus            `bson:"status" json:"status,omitempty"`
	AuthMethods map[string]AuthMethod `bson:"auth_methods,omitempty" json:"-"`
	Emails      []EmailRecord         `bson:"emails,omitempty" json:"emails,omitempty"`
	Phone       string                `bson:"phone,omitempty" json:"phone,omitempty"`
	Roles       []Role                `bson:"roles,omitempty" json:"roles,omitempty"`
	CreatedAt   time.Time             `bson:"created_at" json:"created_at,omitempty"`
	UpdatedAt   time.Time             `bson:"updated_at" json:"updated_at,omitempty"`
	DisabledAt  *time.Time            `bson:"disabled_at,omitempty" json:"disabled_at,omitempty"`
	DeletedAt   *time.Time            `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// EnsureStatus normalizes the zero value to active
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// PrimaryEmail returns the first email address, or empty
func (u *User) PrimaryEmail() string {
	if len(u.Emails) == 0 {
		return ""
	}
	return u.Emails[0].Address
}

// HasVerifiedEmail reports whether the given address is attached and verified
func (u *User) HasVerifiedEmail(address string) bool {
	for _, e := range u.Emails {
		if e.Address == address {
			return e.Verified
		}
	}
	return false
}

// HasRole reports whether the user carries the given role
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PasswordHash returns the stored password hash, empty if the user
// has no password auth method
func (u *User) PasswordHash() string {
	if u.AuthMethods == nil {
		return ""
	}
	return u.AuthMethods[AuthMethodPassword].Hash
}

// AnonymizedHandle is the handle a deleted account is rewritten to.
// Includes a random component so repeated deletions never collide.
func AnonymizedHandle(id bson.ObjectID) string {
	return fmt.Sprintf("deleted-%s-%s", id.Hex(), uuid.NewString())
}

// Session is a persistent auth session. A session with a nil UserID is
// an unauthenticated guest session.
type Session struct {
	ID        bson.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	AuthToken string         `bson:"auth_token" json:"-"`
	UserID    *bson.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	ExpiresAt time.Time      `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// IsAuthenticated reports whether a user is bound to the session
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != nil
}

// VerificationToken is a single-use email verification token
type VerificationToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Token     string        `bson:"token" json:"-"`
	UserID    bson.ObjectID `bson:"user_id" json:"user_id"`
	Email     string        `bson:"email" json:"email"`
	ExpiresAt time.Time     `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

// PasswordResetToken is a single-use password reset token
type PasswordResetToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Token     string        `bson:"token" json:"-"`
	UserID    bson.ObjectID `bson:"user_id" json:"user_id"`
	Email     string        `bson:"email" json:"email"`
	ExpiresAt time.Time     `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

// UserInfo is the public-safe projection of a user handed to
// downstream callers. It never carries credential material.
type UserInfo struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	roles  []Role
}

// NewUserInfo builds the public projection from a user record
func NewUserInfo(u *User) *UserInfo {
	if u == nil {
		return nil
	}
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return &UserInfo{
		ID:     u.ID.Hex(),
		Handle: u.Handle,
		roles:  roles,
	}
}

// HasRole checks the user's stored roles
func (u *UserInfo) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole fails with an access denied error naming the missing role
func (u *UserInfo) RequireRole(role Role) error {
	if u.HasRole(role) {
		return nil
	}
	return ErrMissingRole(role)
}

// Roles returns a copy of the user's stored roles
func (u *UserInfo) Roles() []Role {
	if u == nil {
		return nil
	}
	out := make([]Role, len(u.roles))
	copy(out, u.roles)
	return out
}
