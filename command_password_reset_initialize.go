package identity

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	Connection Connection
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// Validate will run validation rules
func (p InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// InitializePasswordResetResponse is intentionally identical whether
// or not the address belongs to an account.
type InitializePasswordResetResponse struct {
	Accepted bool `json:"accepted"`
}

type InitializePasswordResetHandler struct {
	auther *Auther
}

func NewInitializePasswordResetHandler(auther *Auther) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{auther: auther}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	a := h.auther

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := a.limiter.Consume(ctx, RateLimitReset, "ip", event.Connection.IP); err != nil {
		return err
	}

	email := NormalizeEmail(event.Email)

	user, err := a.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if IsRecordNotFound(err) {
			// Unknown addresses get the same acknowledgment so the
			// endpoint cannot be used to probe for accounts.
			h.respond(event)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	if user.Status != UserStatusActive {
		h.respond(event)
		return nil
	}

	// A link that just went out covers repeat requests; acknowledge
	// without issuing another.
	if latest, err := a.repo.PasswordResets().LatestForUser(ctx, user.ID); err == nil {
		recent, terr := IsWithinThresholdPeriod(latest.CreatedAt, a.config.PasswordResetResendThreshold)
		if terr == nil && recent {
			h.respond(event)
			return nil
		}
	}

	reset, err := a.repo.PasswordResets().Create(ctx, user.ID, email, a.config.PasswordResetTTL)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
	}

	if err := h.sendResetEmail(ctx, email, reset.Token); err != nil {
		a.logger.Error("failed to send password reset email to %s: %s", email, err)
	}

	h.respond(event)
	return nil
}

func (h *InitializePasswordResetHandler) respond(event InitializePasswordResetMessage) {
	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Accepted: true})
	}
}

func (h *InitializePasswordResetHandler) sendResetEmail(ctx context.Context, email, token string) error {
	a := h.auther

	if !a.sender.Configured() {
		a.logger.Debug("email sender not configured, skipping password reset email for %s", email)
		return nil
	}

	link := fmt.Sprintf("%s/auth/password-reset?token=%s", a.config.BaseURL, token)

	return a.sender.SendEmail(ctx, EmailMessage{
		To:      email,
		From:    a.config.EmailFrom,
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Reset your password by visiting:\n\n%s\n\nThe link expires in %s. If you did not request this, ignore this message.", link, a.config.PasswordResetTTL),
		HTML:    fmt.Sprintf(`<p>Reset your password by clicking <a href="%s">this link</a>.</p><p>The link expires in %s. If you did not request this, ignore this message.</p>`, link, a.config.PasswordResetTTL),
	})
}
