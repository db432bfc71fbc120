package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultSessionDuration is how long a freshly issued session lives
const DefaultSessionDuration = 30 * 24 * time.Hour

// SessionManager issues and mutates persistent sessions. Every
// operation is a store write; there is no in-memory session cache.
type SessionManager struct {
	store    Sessions
	duration time.Duration
	logger   Logger
	now      func() time.Time
}

type SessionManagerOption func(*SessionManager)

// WithSessionDuration overrides the default session lifetime
func WithSessionDuration(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests)
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSessionLogger overrides the default logger
func WithSessionLogger(l Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSessionManager will create a new SessionManager
func NewSessionManager(store Sessions, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		store:    store,
		duration: DefaultSessionDuration,
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// CreateSession issues a new session, optionally bound to a user.
// The token carries 256 bits of entropy so collisions are not retried.
func (m *SessionManager) CreateSession(ctx context.Context, userID *bson.ObjectID) (*Session, error) {
	now := m.now()
	session := &Session{
		AuthToken: NewAuthToken(),
		UserID:    userID,
		ExpiresAt: now.Add(m.duration),
		CreatedAt: now,
	}

	if err := m.store.Insert(ctx, session); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	return session, nil
}

// ObtainSession resolves a token to a session and never fails for
// unknown input: an empty or unrecognized token transparently becomes
// a fresh guest session. Found sessions are returned verbatim;
// expiry is deliberately not enforced here, login and logout
// semantics depend on the stored record being visible.
func (m *SessionManager) ObtainSession(ctx context.Context, authToken string) (*Session, error) {
	if authToken == "" {
		return m.CreateSession(ctx, nil)
	}

	session, err := m.store.FindByToken(ctx, authToken)
	if err == nil {
		return session, nil
	}

	if !IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up session")
	}

	m.logger.Debug("unknown auth token, issuing guest session")
	return m.CreateSession(ctx, nil)
}

// SetSessionUser binds a user to an existing session (login)
func (m *SessionManager) SetSessionUser(ctx context.Context, authToken string, userID bson.ObjectID) error {
	return m.store.SetUser(ctx, authToken, userID)
}

// ClearSessionUser unbinds the user from a session (logout)
func (m *SessionManager) ClearSessionUser(ctx context.Context, authToken string) error {
	return m.store.ClearUser(ctx, authToken)
}

// SweepExpired deletes sessions past their expiry. Callers are
// expected to hold the session sweep lock so only one process
// instance runs the sweep.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
