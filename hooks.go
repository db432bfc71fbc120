package identity

import "context"

// Hooks lets host applications observe authentication lifecycle
// events. All fields are optional; hooks run synchronously inside the
// flow that triggered them, and error hooks fire before the error
// propagates to the caller.
type Hooks struct {
	OnLogin                  func(ctx context.Context, user *User)
	OnLoginError             func(ctx context.Context, email string, err error)
	OnSignup                 func(ctx context.Context, user *User)
	OnSignupError            func(ctx context.Context, email string, err error)
	OnLogout                 func(ctx context.Context, session *Session)
	OnEmailVerified          func(ctx context.Context, user *User, email string)
	OnEmailVerificationError func(ctx context.Context, token string, err error)
	OnPasswordReset          func(ctx context.Context, user *User)
}

// LegacyHooks mirrors the nested per-flow callback shape older
// integrations configure. Lift converts it to the flat Hooks form.
type LegacyHooks struct {
	Login struct {
		OnSuccess func(ctx context.Context, user *User)
		OnError   func(ctx context.Context, email string, err error)
	}
	Signup struct {
		OnSuccess func(ctx context.Context, user *User)
		OnError   func(ctx context.Context, email string, err error)
	}
}

// Lift adapts the legacy nested callbacks to Hooks
func (l LegacyHooks) Lift() Hooks {
	return Hooks{
		OnLogin:       l.Login.OnSuccess,
		OnLoginError:  l.Login.OnError,
		OnSignup:      l.Signup.OnSuccess,
		OnSignupError: l.Signup.OnError,
	}
}

func (h Hooks) fireLogin(ctx context.Context, user *User) {
	if h.OnLogin != nil {
		h.OnLogin(ctx, user)
	}
}

func (h Hooks) fireLoginError(ctx context.Context, email string, err error) {
	if h.OnLoginError != nil {
		h.OnLoginError(ctx, email, err)
	}
}

func (h Hooks) fireSignup(ctx context.Context, user *User) {
	if h.OnSignup != nil {
		h.OnSignup(ctx, user)
	}
}

func (h Hooks) fireSignupError(ctx context.Context, email string, err error) {
	if h.OnSignupError != nil {
		h.OnSignupError(ctx, email, err)
	}
}

func (h Hooks) fireLogout(ctx context.Context, session *Session) {
	if h.OnLogout != nil {
		h.OnLogout(ctx, session)
	}
}

func (h Hooks) fireEmailVerified(ctx context.Context, user *User, email string) {
	if h.OnEmailVerified != nil {
		h.OnEmailVerified(ctx, user, email)
	}
}

func (h Hooks) fireEmailVerificationError(ctx context.Context, token string, err error) {
	if h.OnEmailVerificationError != nil {
		h.OnEmailVerificationError(ctx, token, err)
	}
}

func (h Hooks) firePasswordReset(ctx context.Context, user *User) {
	if h.OnPasswordReset != nil {
		h.OnPasswordReset(ctx, user)
	}
}
