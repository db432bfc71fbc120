package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

type RegisterUserMessage struct {
	Handle     string `json:"handle"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	UseHashid  bool
	Connection Connection
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.Handle, validation.Length(0, 60)),
	)
}

type RegisterUserHandler struct {
	auther *Auther
}

func NewRegisterUserHandler(auther *Auther) *RegisterUserHandler {
	return &RegisterUserHandler{auther: auther}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	a := h.auther
	email := NormalizeEmail(event.Email)

	user, err := h.register(ctx, a, email, event)
	if err != nil {
		a.hooks.fireSignupError(ctx, email, err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	if err := a.SendVerificationEmail(ctx, user, email); err != nil {
		// Registration already committed, the user can request a new
		// link from the login flow.
		a.logger.Error("failed to send verification email to %s: %s", email, err)
	}

	a.hooks.fireSignup(ctx, user)
	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignup,
		UserID:    user.ID.Hex(),
		Metadata:  map[string]any{"ip": event.Connection.IP},
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *RegisterUserHandler) register(ctx context.Context, a *Auther, email string, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration request").
			WithCode(goerrors.CodeBadRequest)
	}

	if a.classifier.IsDisposable(email) {
		return nil, ErrDisposableEmail
	}

	if err := a.limiter.Consume(ctx, RateLimitSignup, "ip", event.Connection.IP); err != nil {
		return nil, err
	}

	if _, err := a.repo.Users().FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !IsRecordNotFound(err) {
		return nil, err
	}

	phone, err := NormalizePhone(event.Phone, a.config.PhoneRegion)
	if err != nil {
		return nil, err
	}

	handle, err := ResolveHandle(ctx, a.repo.Users(), getHandle(event.Handle, email))
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Handle: handle,
		Status: UserStatusActive,
		Phone:  phone,
		Emails: []EmailRecord{{Address: email, Verified: false}},
		AuthMethods: map[string]AuthMethod{
			AuthMethodPassword: {Hash: hash},
		},
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ExternalID = id.String()
		}
	}

	user, err = a.repo.Users().Create(ctx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	return user, nil
}
