package identity

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeDisposableEmail    = "DISPOSABLE_EMAIL"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeAccessDenied       = "ACCESS_DENIED"
	TextCodeTokenInvalid       = "TOKEN_INVALID_OR_EXPIRED"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeAccountUnavailable = "ACCOUNT_UNAVAILABLE"
	TextCodeOAuthStateMismatch = "OAUTH_STATE_MISMATCH"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword deliberately covers both "user not
// found" and "wrong password" so callers cannot enumerate accounts.
var ErrMismatchedHashAndPassword = errors.New("incorrect email/password combination", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrEmailNotVerified blocks password logins until the address is confirmed
var ErrEmailNotVerified = errors.New("email address has not been verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrEmailTaken is returned on signup when the address belongs to a live account
var ErrEmailTaken = errors.New("email address is already in use", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrDisposableEmail rejects throwaway email domains at signup
var ErrDisposableEmail = errors.New("disposable email addresses are not allowed", errors.CategoryValidation).
	WithTextCode(TextCodeDisposableEmail).
	WithCode(errors.CodeBadRequest)

// ErrSessionNotInitialized is returned by flows that require an existing session
var ErrSessionNotInitialized = errors.New("session is not initialized", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalidOrExpired covers missing, consumed, and expired
// verification/reset tokens without distinguishing them.
var ErrTokenInvalidOrExpired = errors.New("token is invalid or has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrAccountUnavailable is returned for disabled or deleted accounts
var ErrAccountUnavailable = errors.New("account is disabled or deleted", errors.CategoryAuth).
	WithTextCode(TextCodeAccountUnavailable).
	WithCode(errors.CodeForbidden)

// ErrOAuthAccountExists asks the user to log in with their original
// method instead of silently attaching a second provider to a
// matching email (prevents account takeover).
var ErrOAuthAccountExists = errors.New("an account with this email already exists, please log in instead", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrMissingPermission builds the access denied error for requireAccess,
// citing the first unsatisfied permission.
func ErrMissingPermission(permission Permission) *errors.Error {
	return errors.New(fmt.Sprintf("access denied: missing permission %q", permission), errors.CategoryAuthz).
		WithTextCode(TextCodeAccessDenied).
		WithCode(errors.CodeForbidden).
		WithMetadata(map[string]any{"permission": permission})
}

// ErrMissingRole builds the access denied error for RequireRole
func ErrMissingRole(role Role) *errors.Error {
	return errors.New(fmt.Sprintf("access denied: missing role %q", role), errors.CategoryAuthz).
		WithTextCode(TextCodeAccessDenied).
		WithCode(errors.CodeForbidden).
		WithMetadata(map[string]any{"role": role})
}

// IsRateLimited will check for rate limit errors from any layer
func IsRateLimited(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryRateLimit
}

// IsAccessDenied will check for authorization errors
func IsAccessDenied(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuthz
}

// StatusCode maps an error to the HTTP status the boundary should
// emit: rate limits map to 429, everything else follows the embedded
// code, unknown errors map to 500.
func StatusCode(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}
	if richErr.Category == errors.CategoryRateLimit {
		return http.StatusTooManyRequests
	}
	if richErr.Code > 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

func statusAuthError(status UserStatus) error {
	switch status {
	case "", UserStatusActive:
		return nil
	default:
		return ErrAccountUnavailable.Clone().
			WithMetadata(map[string]any{"status": string(status)})
	}
}
