package social

import (
	"errors"
	"time"

	"github.com/goliatone/go-router"

	identity "github.com/goliatone/go-identity"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles social auth HTTP routes.
type HTTPController struct {
	authenticator *Authenticator
	config        HTTPConfig
	logger        identity.Logger
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// SessionCookieName carries the session token (default: identity.AuthTokenCookie)
	SessionCookieName string

	// SessionCookieDuration bounds the session cookie lifetime
	SessionCookieDuration time.Duration

	// StateTTL bounds one authorization round trip (default: 10m)
	StateTTL time.Duration

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// SuccessRedirect is the default redirect after successful auth
	SuccessRedirect string
}

// NewHTTPController creates a new social auth HTTP controller.
func NewHTTPController(auth *Authenticator, cfg HTTPConfig, logger identity.Logger) *HTTPController {
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = identity.AuthTokenCookie
	}
	if cfg.SessionCookieDuration == 0 {
		cfg.SessionCookieDuration = identity.DefaultSessionDuration
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if logger == nil {
		logger = identity.DefaultLogger()
	}

	return &HTTPController{
		authenticator: auth,
		config:        cfg,
		logger:        logger,
	}
}

// RegisterRoutes registers social auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns available social providers.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": c.authenticator.ListProviders(),
	})
}

// BeginAuth starts the OAuth flow: state goes into a per-provider
// cookie and the browser gets sent to the provider.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	providerName := ctx.Param("provider")

	begin, err := c.authenticator.BeginAuth(ctx.Context(), providerName)
	if err != nil {
		return ctx.JSON(identity.StatusCode(err), map[string]string{
			"error": err.Error(),
		})
	}

	ctx.Cookie(&router.Cookie{
		Name:     StateCookieName(providerName),
		Value:    begin.State,
		Path:     "/",
		Expires:  time.Now().Add(c.config.StateTTL),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Lax",
	})

	return ctx.Redirect(begin.URL, router.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback. A state mismatch is a hard 400
// without touching the provider; upstream failures are logged and
// collapse into a generic failure.
func (c *HTTPController) Callback(ctx router.Context) error {
	providerName := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	issued := ctx.Cookies(StateCookieName(providerName), "")
	c.clearStateCookie(ctx, providerName)

	if !VerifyState(issued, state) {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": ErrStateMismatch.Error(),
		})
	}

	if code == "" {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "missing authorization code",
		})
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), providerName, code)
	if err != nil {
		return c.completeError(ctx, providerName, err)
	}

	c.setSessionCookie(ctx, result.Session.AuthToken)

	redirectURL := c.config.SuccessRedirect
	if result.IsNewUser {
		redirectURL += "?new_user=true"
	}

	return ctx.Redirect(redirectURL, router.StatusTemporaryRedirect)
}

// completeError distinguishes user-actionable conflicts from upstream
// failures, which always read as a generic authentication failure.
func (c *HTTPController) completeError(ctx router.Context, providerName string, err error) error {
	switch {
	case errors.Is(err, identity.ErrOAuthAccountExists):
		return ctx.JSON(identity.StatusCode(err), map[string]string{
			"error": identity.ErrOAuthAccountExists.Error(),
		})
	case errors.Is(err, identity.ErrAccountUnavailable):
		return ctx.JSON(identity.StatusCode(err), map[string]string{
			"error": identity.ErrAccountUnavailable.Error(),
		})
	default:
		c.logger.Error("%s social login failed: %s", providerName, err)
		return ctx.JSON(router.StatusInternalServerError, map[string]string{
			"error": ErrAuthFailed.Error(),
		})
	}
}

func (c *HTTPController) setSessionCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(c.config.SessionCookieDuration),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Strict",
	})
}

func (c *HTTPController) clearStateCookie(ctx router.Context, providerName string) {
	ctx.Cookie(&router.Cookie{
		Name:     StateCookieName(providerName),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: "Lax",
	})
}
