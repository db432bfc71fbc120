package social

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	identity "github.com/goliatone/go-identity"
)

// Authenticator resolves provider profiles against the local user
// store and binds the outcome to a session.
type Authenticator struct {
	repo      identity.RepositoryManager
	sessions  *identity.SessionManager
	providers map[string]SocialProvider
	activity  identity.ActivitySink
	logger    identity.Logger
}

type Option func(*Authenticator)

func WithLogger(l identity.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithActivitySink(s identity.ActivitySink) Option {
	return func(a *Authenticator) {
		if s != nil {
			a.activity = s
		}
	}
}

func WithProviders(providers ...SocialProvider) Option {
	return func(a *Authenticator) {
		for _, p := range providers {
			a.Register(p)
		}
	}
}

func New(repo identity.RepositoryManager, sessions *identity.SessionManager, opts ...Option) *Authenticator {
	a := &Authenticator{
		repo:      repo,
		sessions:  sessions,
		providers: map[string]SocialProvider{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.logger == nil {
		a.logger = identity.DefaultLogger()
	}

	return a
}

// Register adds a provider, replacing any previous one with the same name
func (a *Authenticator) Register(p SocialProvider) {
	if p != nil {
		a.providers[p.Name()] = p
	}
}

func (a *Authenticator) Provider(name string) (SocialProvider, error) {
	p, ok := a.providers[name]
	if !ok {
		return nil, ErrProviderNotFound.Clone().
			WithMetadata(map[string]any{"provider": name})
	}
	return p, nil
}

// ListProviders returns the registered provider names
func (a *Authenticator) ListProviders() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	return names
}

// BeginAuthResult carries the authorization redirect and the state
// the caller must persist for the callback comparison.
type BeginAuthResult struct {
	URL   string
	State string
}

// BeginAuth issues a fresh CSRF state and builds the provider
// authorization URL.
func (a *Authenticator) BeginAuth(ctx context.Context, providerName string) (*BeginAuthResult, error) {
	provider, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}

	state := NewState()

	return &BeginAuthResult{
		URL:   provider.AuthCodeURL(state),
		State: state,
	}, nil
}

// Result is the outcome of a completed social login
type Result struct {
	Session   *identity.Session
	User      *identity.User
	IsNewUser bool
}

// CompleteAuth exchanges the code, fetches the profile, and resolves
// it against the local store. The caller must have verified the state
// beforehand; see VerifyState.
func (a *Authenticator) CompleteAuth(ctx context.Context, providerName, code string) (*Result, error) {
	provider, err := a.Provider(providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		a.logger.Error("%s token exchange failed: %s", providerName, err)
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token exchange failed").
			WithTextCode(TextCodeTokenExchangeFail)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		a.logger.Error("%s user info fetch failed: %s", providerName, err)
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to fetch user info").
			WithTextCode(TextCodeUserInfoFail)
	}

	user, isNew, err := a.resolve(ctx, providerName, profile)
	if err != nil {
		return nil, err
	}

	session, err := a.sessions.CreateSession(ctx, &user.ID)
	if err != nil {
		return nil, err
	}

	a.recordLogin(ctx, providerName, user, isNew)

	return &Result{
		Session:   session,
		User:      user,
		IsNewUser: isNew,
	}, nil
}

// resolve maps a provider profile onto a local account: an existing
// provider binding wins, a colliding email is rejected so the owner
// logs in with their original method, anything else creates a user.
func (a *Authenticator) resolve(ctx context.Context, providerName string, profile *Profile) (*identity.User, bool, error) {
	users := a.repo.Users()

	user, err := users.FindByAuthProviderID(ctx, providerName, profile.ProviderUserID)
	if err == nil {
		if user.Status != identity.UserStatusActive {
			return nil, false, identity.ErrAccountUnavailable
		}
		return user, false, nil
	}
	if !identity.IsRecordNotFound(err) {
		return nil, false, err
	}

	email := identity.NormalizeEmail(profile.Email)

	if email != "" {
		if _, err := users.FindByEmail(ctx, email); err == nil {
			return nil, false, identity.ErrOAuthAccountExists
		} else if !identity.IsRecordNotFound(err) {
			return nil, false, err
		}
	}

	user, err = a.createUser(ctx, providerName, profile, email)
	if err != nil {
		return nil, false, err
	}

	return user, true, nil
}

func (a *Authenticator) createUser(ctx context.Context, providerName string, profile *Profile, email string) (*identity.User, error) {
	handle, err := identity.ResolveHandle(ctx, a.repo.Users(), desiredHandle(providerName, profile, email))
	if err != nil {
		return nil, err
	}

	user := &identity.User{
		Handle: handle,
		Status: identity.UserStatusActive,
		AuthMethods: map[string]identity.AuthMethod{
			providerName: {ID: profile.ProviderUserID},
			// An unguessable hash keeps the password method present
			// but unusable until the user sets one.
			identity.AuthMethodPassword: {Hash: identity.RandomPasswordHash()},
		},
	}

	if email != "" {
		user.Emails = []identity.EmailRecord{{
			Address:  email,
			Verified: profile.EmailVerified,
		}}
	}

	return a.repo.Users().Create(ctx, user)
}

func desiredHandle(providerName string, profile *Profile, email string) string {
	if profile.Username != "" {
		return profile.Username
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return providerName + "-user"
}

func (a *Authenticator) recordLogin(ctx context.Context, providerName string, user *identity.User, isNew bool) {
	if a.activity == nil {
		return
	}

	err := a.activity.Record(ctx, identity.ActivityEvent{
		EventType: identity.ActivityEventSocialLogin,
		UserID:    user.ID.Hex(),
		Metadata: map[string]any{
			"provider": providerName,
			"new_user": isNew,
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		a.logger.Error("failed to record social login activity: %s", err)
	}
}
