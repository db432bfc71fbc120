package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token          string `json:"token"`
	Password       string `json:"password"`
	PasswordRepeat string `json:"password_repeat"`
	OnResponse     func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// Validate will run validation rules
func (p FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&p.PasswordRepeat,
			validation.Required,
			validation.By(ValidateStringEquals(p.Password)),
		),
	)
}

type FinalizePasswordResetResponse struct {
	Success bool `json:"success"`
}

type FinalizePasswordResetHandler struct {
	auther *Auther
}

func NewFinalizePasswordResetHandler(auther *Auther) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{auther: auther}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	a := h.auther

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request").
			WithCode(goerrors.CodeBadRequest)
	}

	reset, err := a.repo.PasswordResets().FindLive(ctx, event.Token, time.Now())
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrTokenInvalidOrExpired
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve password reset record")
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := a.repo.Users().SetPasswordHash(ctx, reset.UserID, hash); err != nil {
		if IsRecordNotFound(err) {
			return ErrTokenInvalidOrExpired
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	consumed, err := a.repo.PasswordResets().Consume(ctx, event.Token)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume password reset token")
	}
	if !consumed {
		return ErrTokenInvalidOrExpired
	}

	// Invalidate any other outstanding reset links for this account.
	if _, err := a.repo.PasswordResets().DeleteForUser(ctx, reset.UserID); err != nil {
		a.logger.Error("failed to clear password reset tokens for %s: %s", reset.UserID.Hex(), err)
	}

	if user, err := a.repo.Users().GetByID(ctx, reset.UserID); err == nil {
		a.hooks.firePasswordReset(ctx, user)
		a.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetSuccess,
			UserID:    user.ID.Hex(),
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{Success: true})
	}

	return nil
}
