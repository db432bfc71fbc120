package social

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	identity "github.com/goliatone/go-identity"
)

// fakeUsers implements the subset of the user store the social flows
// touch; the remaining methods are not expected to be called.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*identity.User{}}
}

var _ identity.Users = (*fakeUsers)(nil)

func (f *fakeUsers) add(user *identity.User) *identity.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	f.users[user.ID.Hex()] = user
	return user
}

func (f *fakeUsers) GetByID(ctx context.Context, id bson.ObjectID) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id.Hex()]
	if !ok {
		return nil, identity.NewRecordNotFound()
	}
	return user, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Status == identity.UserStatusDeleted {
			continue
		}
		for _, rec := range user.Emails {
			if rec.Address == email {
				return user, nil
			}
		}
	}
	return nil, identity.NewRecordNotFound()
}

func (f *fakeUsers) FindByAuthProviderID(ctx context.Context, provider, providerID string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Status == identity.UserStatusDeleted {
			continue
		}
		if method, ok := user.AuthMethods[provider]; ok && method.ID == providerID {
			return user, nil
		}
	}
	return nil, identity.NewRecordNotFound()
}

func (f *fakeUsers) HandleExists(ctx context.Context, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Handle == handle {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) Create(ctx context.Context, user *identity.User) (*identity.User, error) {
	user.EnsureStatus()
	return f.add(user), nil
}

func (f *fakeUsers) MarkEmailVerified(ctx context.Context, id bson.ObjectID, email string) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeUsers) SetPasswordHash(ctx context.Context, id bson.ObjectID, hash string) error {
	return errors.New("not implemented")
}

func (f *fakeUsers) AttachAuthMethod(ctx context.Context, id bson.ObjectID, provider string, method identity.AuthMethod) error {
	return errors.New("not implemented")
}

func (f *fakeUsers) Disable(ctx context.Context, id bson.ObjectID) (*identity.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUsers) Delete(ctx context.Context, id bson.ObjectID) (*identity.User, error) {
	return nil, errors.New("not implemented")
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*identity.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*identity.Session{}}
}

var _ identity.Sessions = (*fakeSessions)(nil)

func (f *fakeSessions) Insert(ctx context.Context, session *identity.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = bson.NewObjectID()
	}
	f.sessions[session.AuthToken] = session
	return nil
}

func (f *fakeSessions) FindByToken(ctx context.Context, authToken string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[authToken]
	if !ok {
		return nil, identity.NewRecordNotFound()
	}
	return session, nil
}

func (f *fakeSessions) SetUser(ctx context.Context, authToken string, userID bson.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[authToken]
	if !ok {
		return identity.NewRecordNotFound()
	}
	session.UserID = &userID
	return nil
}

func (f *fakeSessions) ClearUser(ctx context.Context, authToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[authToken]
	if !ok {
		return identity.NewRecordNotFound()
	}
	session.UserID = nil
	return nil
}

func (f *fakeSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeRepo struct {
	users    *fakeUsers
	sessions *fakeSessions
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: newFakeUsers(), sessions: newFakeSessions()}
}

var _ identity.RepositoryManager = (*fakeRepo)(nil)

func (f *fakeRepo) Users() identity.Users       { return f.users }
func (f *fakeRepo) Sessions() identity.Sessions { return f.sessions }

func (f *fakeRepo) VerificationTokens() identity.Tokens[*identity.VerificationToken] {
	return nil
}

func (f *fakeRepo) PasswordResets() identity.Tokens[*identity.PasswordResetToken] {
	return nil
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

// fakeProvider is a scriptable SocialProvider
type fakeProvider struct {
	name        string
	exchangeErr error
	userInfoErr error
	profile     *Profile
}

var _ SocialProvider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &Token{AccessToken: "access-" + code, TokenType: "bearer"}, nil
}

func (f *fakeProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	return f.profile, nil
}
