package identity

import (
	"time"

	"github.com/goliatone/go-router"
)

const (
	// AuthTokenCookie carries the opaque session token
	AuthTokenCookie = "authToken"
	// AuthContextKey is the router locals slot for the AuthContext
	AuthContextKey = "auth"
)

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	Verify        string
	PasswordReset string
}

type AuthController struct {
	Debug          bool
	Logger         Logger
	Auther         *Auther
	Routes         *AuthControllerRoutes
	CookieDuration time.Duration
	CookieSecure   bool
	ErrorHandler   router.ErrorHandler

	register      *RegisterUserHandler
	verification  *AccountVerificationHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerAuther(a *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = a
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerErrorHandler(h router.ErrorHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if h != nil {
			c.ErrorHandler = h
		}
		return c
	}
}

func WithSecureCookies(secure bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.CookieSecure = secure
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:         defLogger{},
		ErrorHandler:   defaultErrHandler,
		CookieDuration: DefaultSessionDuration,
		Routes: &AuthControllerRoutes{
			Login:         "/auth/login",
			Logout:        "/auth/logout",
			Register:      "/auth/register",
			Verify:        "/auth/verify",
			PasswordReset: "/auth/password-reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	c.register = NewRegisterUserHandler(c.Auther)
	c.verification = NewAccountVerificationHandler(c.Auther)
	c.resetInit = NewInitializePasswordResetHandler(c.Auther)
	c.resetFinalize = NewFinalizePasswordResetHandler(c.Auther)

	return c
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("sign-out.post")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Verify, controller.VerifyGet).
		SetName("verify.get")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Post(controller.Routes.PasswordReset+"/finalize", controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload.SessionToken = ctx.Cookies(AuthTokenCookie, "")
	payload.Connection = connectionInfo(ctx)

	session, err := a.Auther.Login(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.setAuthCookie(ctx, session.AuthToken)

	return ctx.JSON(router.StatusOK, map[string]any{
		"authenticated": true,
		"expires_at":    session.ExpiresAt,
	})
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	token := ctx.Cookies(AuthTokenCookie, "")

	if err := a.Auther.Logout(ctx.Context(), token); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.clearAuthCookie(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"authenticated": false,
	})
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterUserMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload.Connection = connectionInfo(ctx)

	var created *User
	payload.OnResponse = func(user *User) {
		created = user
	}

	if err := a.register.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"id":     created.ID.Hex(),
		"handle": created.Handle,
	})
}

func (a *AuthController) VerifyGet(ctx router.Context) error {
	var redirect *Redirect

	err := a.verification.Execute(ctx.Context(), AccountVerificationMessage{
		Token: ctx.Query("token"),
		OnResponse: func(r *Redirect) {
			redirect = r
		},
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect.Location, redirect.Status)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(InitializePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload.Connection = connectionInfo(ctx)

	var resp *InitializePasswordResetResponse
	payload.OnResponse = func(r *InitializePasswordResetResponse) {
		resp = r
	}

	if err := a.resetInit.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := new(FinalizePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	var resp *FinalizePasswordResetResponse
	payload.OnResponse = func(r *FinalizePasswordResetResponse) {
		resp = r
	}

	if err := a.resetFinalize.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// Middleware resolves the session cookie into an AuthContext and
// stores it in both router locals and the request context. Guests
// pass through with the default unauthenticated roles.
func (a *AuthController) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token := ctx.Cookies(AuthTokenCookie, "")

			auth, err := a.Auther.Authenticate(ctx.Context(), token, connectionInfo(ctx))
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			// A fresh guest session needs its cookie set.
			if token == "" || token != auth.Session.AuthToken {
				a.setAuthCookie(ctx, auth.Session.AuthToken)
			}

			ctx.Locals(AuthContextKey, auth)
			ctx.SetContext(WithContext(ctx.Context(), auth))

			return ctx.Next()
		}
	}
}

// Protected gates a route on permissions resolved through the role
// registry. Guests and under-privileged users get a 401/403 JSON body.
func (a *AuthController) Protected(permissions ...Permission) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			auth, ok := FromRouterContext(ctx)
			if !ok {
				return a.ErrorHandler(ctx, ErrSessionNotInitialized)
			}

			if !auth.IsAuthenticated() {
				return a.ErrorHandler(ctx, ErrIdentityNotFound)
			}

			if err := a.Auther.roles.RequireAccess(auth.Roles, permissions); err != nil {
				return a.ErrorHandler(ctx, err)
			}

			return ctx.Next()
		}
	}
}

func (a *AuthController) setAuthCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     AuthTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.CookieDuration),
		HTTPOnly: true,
		Secure:   a.CookieSecure,
		SameSite: "Strict",
	})
}

func (a *AuthController) clearAuthCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     AuthTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.CookieSecure,
		SameSite: "Strict",
	})
}

func connectionInfo(ctx router.Context) Connection {
	return Connection{
		IP:             ctx.IP(),
		UserAgent:      ctx.GetString("User-Agent", ""),
		AcceptLanguage: ctx.GetString("Accept-Language", ""),
		Referrer:       string(ctx.Referer()),
	}
}

func defaultErrHandler(ctx router.Context, err error) error {
	return ctx.JSON(StatusCode(err), map[string]any{
		"error": err.Error(),
	})
}
