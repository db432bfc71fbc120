package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Rate limit buckets consumed by the credential flows
const (
	RateLimitSignin       = "signin"
	RateLimitSignup       = "signupAttempt"
	RateLimitVerification = "verificationRequest"
	RateLimitReset        = "passwordReset"
)

const (
	DefaultVerificationTokenTTL = 24 * time.Hour
	DefaultPasswordResetTTL     = 24 * time.Hour

	// DefaultPasswordResetResendThreshold is the window during which a
	// repeat reset request is acknowledged without issuing another link.
	DefaultPasswordResetResendThreshold = "1m"
)

// AutherConfig carries the knobs shared by the credential flows
type AutherConfig struct {
	// BaseURL prefixes links embedded in outgoing emails
	BaseURL                string `env:"AUTH_BASE_URL"`
	EmailFrom              string `env:"AUTH_EMAIL_FROM" envDefault:"no-reply@localhost"`
	PhoneRegion            string `env:"AUTH_PHONE_REGION" envDefault:"US"`
	DisposableEmailDomains []string
	VerificationTokenTTL   time.Duration
	PasswordResetTTL       time.Duration
	// PasswordResetResendThreshold is a duration pattern ("1m", "2h30m")
	PasswordResetResendThreshold string `env:"AUTH_PASSWORD_RESET_RESEND_THRESHOLD" envDefault:"1m"`
}

// AutherConfigFromEnv reads the shared flow settings from the environment
func AutherConfigFromEnv() (AutherConfig, error) {
	cfg, err := env.ParseAs[AutherConfig]()
	if err != nil {
		return AutherConfig{}, fmt.Errorf("failed to parse auth environment variables: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *AutherConfig) setDefaults() {
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = DefaultVerificationTokenTTL
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if c.PasswordResetResendThreshold == "" {
		c.PasswordResetResendThreshold = DefaultPasswordResetResendThreshold
	}
}

// Auther orchestrates login, logout, and session resolution over the
// repositories, session manager, and role registry.
type Auther struct {
	repo       RepositoryManager
	sessions   *SessionManager
	roles      *RoleRegistry
	limiter    RateLimiter
	sender     EmailSender
	activity   ActivitySink
	hooks      Hooks
	classifier *DisposableEmailClassifier
	logger     Logger
	config     AutherConfig
}

type AutherOption func(*Auther)

func WithAutherLogger(l Logger) AutherOption {
	return func(a *Auther) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithRateLimiter(l RateLimiter) AutherOption {
	return func(a *Auther) {
		if l != nil {
			a.limiter = l
		}
	}
}

func WithEmailSender(s EmailSender) AutherOption {
	return func(a *Auther) {
		if s != nil {
			a.sender = s
		}
	}
}

func WithHooks(h Hooks) AutherOption {
	return func(a *Auther) {
		a.hooks = h
	}
}

// WithLegacyHooks lifts the nested callback shape once at setup
func WithLegacyHooks(h LegacyHooks) AutherOption {
	return func(a *Auther) {
		a.hooks = h.Lift()
	}
}

func WithActivitySink(s ActivitySink) AutherOption {
	return func(a *Auther) {
		a.activity = normalizeActivitySink(s)
	}
}

func WithAutherConfig(cfg AutherConfig) AutherOption {
	return func(a *Auther) {
		a.config = cfg
	}
}

// noopRateLimiter keeps flows unthrottled when no limiter is wired
type noopRateLimiter struct{}

func (noopRateLimiter) Consume(context.Context, string, string, string) error { return nil }

func NewAuther(repo RepositoryManager, sessions *SessionManager, roles *RoleRegistry, opts ...AutherOption) *Auther {
	a := &Auther{
		repo:     repo,
		sessions: sessions,
		roles:    roles,
		limiter:  noopRateLimiter{},
		sender:   &NoopEmailSender{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.config.setDefaults()
	a.classifier = NewDisposableEmailClassifier(a.config.DisposableEmailDomains...)

	return a
}

// Repository exposes the backing stores to sibling packages
func (a *Auther) Repository() RepositoryManager { return a.repo }

// SessionManager exposes the session manager to sibling packages
func (a *Auther) SessionManager() *SessionManager { return a.sessions }

// DisableAccount suspends an active account and records the status
// transition for audit consumers.
func (a *Auther) DisableAccount(ctx context.Context, id bson.ObjectID) (*User, error) {
	prior, err := a.repo.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.Users().Disable(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		UserID:     user.ID.Hex(),
		FromStatus: prior.Status,
		ToStatus:   user.Status,
	})

	return user, nil
}

// DeleteAccount anonymizes the account, clears its outstanding tokens,
// and records the status transition.
func (a *Auther) DeleteAccount(ctx context.Context, id bson.ObjectID) (*User, error) {
	prior, err := a.repo.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.Users().Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := a.repo.VerificationTokens().DeleteForUser(ctx, id); err != nil {
		a.logger.Error("failed to clear verification tokens for %s: %s", id.Hex(), err)
	}
	if _, err := a.repo.PasswordResets().DeleteForUser(ctx, id); err != nil {
		a.logger.Error("failed to clear password reset tokens for %s: %s", id.Hex(), err)
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		UserID:     user.ID.Hex(),
		FromStatus: prior.Status,
		ToStatus:   user.Status,
	})

	return user, nil
}

// AuthContext is the per-request authentication view handed to the
// application. User carries id and handle only, never the raw record.
type AuthContext struct {
	Session    *Session
	User       *UserInfo
	Roles      []Role
	Connection Connection
}

// IsAuthenticated reports whether the session is bound to a user
func (a *AuthContext) IsAuthenticated() bool {
	return a != nil && a.User != nil
}

func (a *AuthContext) HasRole(role Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a *AuthContext) RequireRole(role Role) error {
	if a.HasRole(role) {
		return nil
	}
	return ErrMissingRole(role)
}

// HasPermission resolves the permission through the role registry
func (a *Auther) HasPermission(authCtx *AuthContext, permission Permission) bool {
	if authCtx == nil {
		return false
	}
	return a.roles.HasPermission(authCtx.Roles, permission)
}

// Authenticate resolves the auth token into an AuthContext. A missing
// or unknown token, an unbound session, or an unavailable account all
// produce the guest view with the default unauthenticated roles.
func (a *Auther) Authenticate(ctx context.Context, authToken string, conn Connection) (*AuthContext, error) {
	session, err := a.sessions.ObtainSession(ctx, authToken)
	if err != nil {
		return nil, err
	}

	guest := &AuthContext{
		Session:    session,
		Roles:      a.roles.DefaultUnauthenticatedRoles(),
		Connection: conn,
	}

	if !session.IsAuthenticated() {
		return guest, nil
	}

	user, err := a.repo.Users().GetByID(ctx, *session.UserID)
	if err != nil {
		if IsRecordNotFound(err) {
			a.logger.Info("session %s references missing user %s", session.ID.Hex(), session.UserID.Hex())
			return guest, nil
		}
		return nil, err
	}

	if user.Status != UserStatusActive {
		a.logger.Info("session %s references %s user %s", session.ID.Hex(), user.Status, user.ID.Hex())
		return guest, nil
	}

	return &AuthContext{
		Session:    session,
		User:       NewUserInfo(user),
		Roles:      a.mergeAuthenticatedRoles(user.Roles),
		Connection: conn,
	}, nil
}

func (a *Auther) mergeAuthenticatedRoles(userRoles []Role) []Role {
	merged := append([]Role{}, a.roles.DefaultAuthenticatedRoles()...)
	seen := make(map[Role]struct{}, len(merged))
	for _, r := range merged {
		seen[r] = struct{}{}
	}
	for _, r := range userRoles {
		if _, dup := seen[r]; !dup {
			merged = append(merged, r)
			seen[r] = struct{}{}
		}
	}
	return merged
}

// LoginMessage carries password credentials plus the connection the
// attempt arrived on. SessionToken, when present, upgrades the guest
// session instead of minting a new one.
type LoginMessage struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	SessionToken string `json:"-"`
	Connection   Connection
}

func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// Login authenticates password credentials and binds the resulting
// user to a session. Unknown address and wrong password are
// indistinguishable to the caller.
func (a *Auther) Login(ctx context.Context, msg LoginMessage) (*Session, error) {
	email := NormalizeEmail(msg.Email)

	user, err := a.login(ctx, email, msg)
	if err != nil {
		a.hooks.fireLoginError(ctx, email, err)
		a.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": email, "ip": msg.Connection.IP},
		})
		return nil, err
	}

	session, err := a.bindSession(ctx, msg.SessionToken, user.ID)
	if err != nil {
		a.hooks.fireLoginError(ctx, email, err)
		return nil, err
	}

	a.hooks.fireLogin(ctx, user)
	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.Hex(),
		Metadata:  map[string]any{"ip": msg.Connection.IP},
	})

	return session, nil
}

func (a *Auther) login(ctx context.Context, email string, msg LoginMessage) (*User, error) {
	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login request").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := a.limiter.Consume(ctx, RateLimitSignin, "ip", msg.Connection.IP); err != nil {
		return nil, err
	}

	user, err := a.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if IsRecordNotFound(err) {
			// Burn a compare so unknown addresses cost the same as
			// wrong passwords.
			_ = ComparePasswordAndHash(msg.Password, RandomPasswordHash())
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, err
	}

	if user.Status != UserStatusActive {
		return nil, statusAuthError(user.Status)
	}

	if err := ComparePasswordAndHash(msg.Password, user.PasswordHash()); err != nil {
		return nil, err
	}

	if !user.HasVerifiedEmail(email) && a.sender.Configured() {
		if err := a.resendVerification(ctx, user, email); err != nil {
			a.logger.Error("failed to resend verification email: %s", err)
		}
		return nil, ErrEmailNotVerified
	}

	return user, nil
}

// resendVerification issues a fresh token for the address, throttled
// per user so a stuck client cannot flood the outbox.
func (a *Auther) resendVerification(ctx context.Context, user *User, email string) error {
	if err := a.limiter.Consume(ctx, RateLimitVerification, "user", user.ID.Hex()); err != nil {
		return err
	}
	return a.SendVerificationEmail(ctx, user, email)
}

// SendVerificationEmail creates a verification token and mails the
// confirmation link. A no-op when no sender is configured.
func (a *Auther) SendVerificationEmail(ctx context.Context, user *User, email string) error {
	if !a.sender.Configured() {
		a.logger.Debug("email sender not configured, skipping verification email for %s", email)
		return nil
	}

	token, err := a.repo.VerificationTokens().Create(ctx, user.ID, email, a.config.VerificationTokenTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", a.config.BaseURL, token.Token)

	return a.sender.SendEmail(ctx, EmailMessage{
		To:      email,
		From:    a.config.EmailFrom,
		Subject: "Confirm your email address",
		Text:    fmt.Sprintf("Confirm your email address by visiting:\n\n%s\n\nThe link expires in %s.", link, a.config.VerificationTokenTTL),
		HTML:    fmt.Sprintf(`<p>Confirm your email address by clicking <a href="%s">this link</a>.</p><p>The link expires in %s.</p>`, link, a.config.VerificationTokenTTL),
	})
}

func (a *Auther) bindSession(ctx context.Context, authToken string, userID bson.ObjectID) (*Session, error) {
	if authToken == "" {
		return a.sessions.CreateSession(ctx, &userID)
	}

	session, err := a.sessions.ObtainSession(ctx, authToken)
	if err != nil {
		return nil, err
	}

	if err := a.sessions.SetSessionUser(ctx, session.AuthToken, userID); err != nil {
		return nil, err
	}

	session.UserID = &userID
	return session, nil
}

// Logout unbinds the user from the session. It requires an existing
// session and fails with ErrSessionNotInitialized otherwise.
func (a *Auther) Logout(ctx context.Context, authToken string) error {
	if authToken == "" {
		return ErrSessionNotInitialized
	}

	session, err := a.repo.Sessions().FindByToken(ctx, authToken)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrSessionNotInitialized
		}
		return err
	}

	if err := a.sessions.ClearSessionUser(ctx, session.AuthToken); err != nil {
		return err
	}

	a.hooks.fireLogout(ctx, session)
	return nil
}

func (a *Auther) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Error("failed to record activity event %s: %s", event.EventType, err)
	}
}
