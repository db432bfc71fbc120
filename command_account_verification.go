package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Verification outcomes surfaced to the browser through the redirect
// status query parameter.
const (
	VerificationOutcomeSuccess         = "success"
	VerificationOutcomeAlreadyVerified = "already_verified"
	VerificationOutcomeUserNotFound    = "user_not_found"
	VerificationOutcomeInvalid         = "invalid"
)

// Redirect is the only response shape the verification flow produces,
// every outcome sends the browser somewhere.
type Redirect struct {
	Status   int    `json:"status"`
	Location string `json:"location"`
}

type AccountVerificationMessage struct {
	Token      string `json:"token"`
	OnResponse func(r *Redirect)
}

func (e AccountVerificationMessage) Type() string { return "user.verify_email" }

type AccountVerificationHandler struct {
	auther *Auther
	// Location the browser lands on, outcome appended as ?status=
	Landing string
}

func NewAccountVerificationHandler(auther *Auther) *AccountVerificationHandler {
	return &AccountVerificationHandler{
		auther:  auther,
		Landing: "/auth/login",
	}
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	outcome, err := h.verify(ctx, event.Token)
	if err != nil {
		h.auther.hooks.fireEmailVerificationError(ctx, event.Token, err)
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(h.redirect(outcome))
	}

	return nil
}

func (h *AccountVerificationHandler) verify(ctx context.Context, token string) (string, error) {
	a := h.auther

	if token == "" {
		return VerificationOutcomeInvalid, nil
	}

	record, err := a.repo.VerificationTokens().FindLive(ctx, token, time.Now())
	if err != nil {
		// Unknown and expired tokens are part of the expected flow,
		// not an application error.
		if IsRecordNotFound(err) {
			return VerificationOutcomeInvalid, nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification token")
	}

	user, err := a.repo.Users().GetByID(ctx, record.UserID)
	if err != nil {
		if IsRecordNotFound(err) {
			// The token outlived its account.
			return VerificationOutcomeUserNotFound, nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification")
	}

	modified, err := a.repo.Users().MarkEmailVerified(ctx, user.ID, record.Email)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
	}

	consumed, err := a.repo.VerificationTokens().Consume(ctx, token)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}
	if !consumed {
		// Lost a race against a concurrent use of the same link.
		return VerificationOutcomeInvalid, nil
	}

	if !modified {
		return VerificationOutcomeAlreadyVerified, nil
	}

	a.hooks.fireEmailVerified(ctx, user, record.Email)
	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		UserID:    user.ID.Hex(),
		Metadata:  map[string]any{"email": record.Email},
	})

	return VerificationOutcomeSuccess, nil
}

func (h *AccountVerificationHandler) redirect(outcome string) *Redirect {
	return &Redirect{
		Status:   301,
		Location: h.Landing + "?status=" + outcome,
	}
}
