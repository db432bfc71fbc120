package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runResetInitialize(t *testing.T, f *autherFixture, email string) *InitializePasswordResetResponse {
	t.Helper()
	handler := NewInitializePasswordResetHandler(f.auther)

	var resp *InitializePasswordResetResponse
	err := handler.Execute(context.Background(), InitializePasswordResetMessage{
		Email:      email,
		Connection: Connection{IP: "10.0.0.1"},
		OnResponse: func(r *InitializePasswordResetResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestPasswordResetInitializeKnownAccount(t *testing.T) {
	f := newAutherFixture(t)
	f.sender.configured = true
	user := f.addUser(t, "jane@example.com", "super-secret")

	resp := runResetInitialize(t, f, "jane@example.com")
	assert.True(t, resp.Accepted)

	require.Equal(t, []string{"jane@example.com"}, f.sender.sentTo())
	assert.Contains(t, f.sender.sent[0].Text, "https://example.com/auth/password-reset?token=")

	f.repo.resets.mu.Lock()
	defer f.repo.resets.mu.Unlock()
	require.Len(t, f.repo.resets.records, 1)
	for _, record := range f.repo.resets.records {
		assert.Equal(t, user.ID, record.UserID)
	}
}

func TestPasswordResetInitializeUnknownAccountIndistinguishable(t *testing.T) {
	f := newAutherFixture(t)
	f.sender.configured = true
	f.addUser(t, "jane@example.com", "super-secret")

	known := runResetInitialize(t, f, "jane@example.com")
	unknown := runResetInitialize(t, f, "nobody@example.com")

	// same acknowledgment either way, the endpoint cannot be used to
	// probe for accounts
	assert.Equal(t, known, unknown)

	// but only the real account got an email
	assert.Equal(t, []string{"jane@example.com"}, f.sender.sentTo())
}

func TestPasswordResetInitializeDisabledAccount(t *testing.T) {
	f := newAutherFixture(t)
	f.sender.configured = true
	f.addUser(t, "jane@example.com", "super-secret", func(u *User) {
		u.Status = UserStatusDisabled
	})

	resp := runResetInitialize(t, f, "jane@example.com")
	assert.True(t, resp.Accepted)
	assert.Empty(t, f.sender.sent)
}

func TestPasswordResetInitializeRateLimited(t *testing.T) {
	f := newAutherFixture(t)
	f.limiter.rejects[RateLimitReset] = errors.New("too many attempts")
	handler := NewInitializePasswordResetHandler(f.auther)

	err := handler.Execute(context.Background(), InitializePasswordResetMessage{
		Email:      "jane@example.com",
		Connection: Connection{IP: "10.0.0.1"},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, f.limiter.callCount(RateLimitReset))
}

func TestPasswordResetInitializeThrottlesRepeatRequests(t *testing.T) {
	f := newAutherFixture(t)
	f.sender.configured = true
	f.addUser(t, "jane@example.com", "super-secret")

	runResetInitialize(t, f, "jane@example.com")
	resp := runResetInitialize(t, f, "jane@example.com")
	assert.True(t, resp.Accepted)

	// the second request is acknowledged but no new link goes out
	assert.Equal(t, []string{"jane@example.com"}, f.sender.sentTo())
	f.repo.resets.mu.Lock()
	defer f.repo.resets.mu.Unlock()
	assert.Len(t, f.repo.resets.records, 1)
}

func TestPasswordResetInitializeReissuesAfterThreshold(t *testing.T) {
	f := newAutherFixture(t)
	f.sender.configured = true
	f.addUser(t, "jane@example.com", "super-secret")

	runResetInitialize(t, f, "jane@example.com")

	f.repo.resets.mu.Lock()
	for _, record := range f.repo.resets.records {
		record.CreatedAt = time.Now().Add(-time.Hour)
	}
	f.repo.resets.mu.Unlock()

	runResetInitialize(t, f, "jane@example.com")
	assert.Equal(t, []string{"jane@example.com", "jane@example.com"}, f.sender.sentTo())
}

func TestPasswordResetFinalize(t *testing.T) {
	f := newAutherFixture(t)
	user := f.addUser(t, "jane@example.com", "old-secret!")
	reset, err := f.repo.resets.Create(context.Background(), user.ID, "jane@example.com", time.Hour)
	require.NoError(t, err)

	handler := NewFinalizePasswordResetHandler(f.auther)

	var resp *FinalizePasswordResetResponse
	require.NoError(t, handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:          reset.Token,
		Password:       "brand-new-secret",
		PasswordRepeat: "brand-new-secret",
		OnResponse:     func(r *FinalizePasswordResetResponse) { resp = r },
	}))
	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	stored, err := f.repo.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NoError(t, ComparePasswordAndHash("brand-new-secret", stored.PasswordHash()))
	assert.Error(t, ComparePasswordAndHash("old-secret!", stored.PasswordHash()))
}

func TestPasswordResetFinalizeTokenIsSingleUse(t *testing.T) {
	f := newAutherFixture(t)
	user := f.addUser(t, "jane@example.com", "old-secret!")
	reset, err := f.repo.resets.Create(context.Background(), user.ID, "jane@example.com", time.Hour)
	require.NoError(t, err)

	handler := NewFinalizePasswordResetHandler(f.auther)

	msg := FinalizePasswordResetMessage{
		Token:          reset.Token,
		Password:       "brand-new-secret",
		PasswordRepeat: "brand-new-secret",
	}
	require.NoError(t, handler.Execute(context.Background(), msg))

	err = handler.Execute(context.Background(), msg)
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestPasswordResetFinalizeInvalidatesSiblingTokens(t *testing.T) {
	f := newAutherFixture(t)
	user := f.addUser(t, "jane@example.com", "old-secret!")

	first, err := f.repo.resets.Create(context.Background(), user.ID, "jane@example.com", time.Hour)
	require.NoError(t, err)
	second, err := f.repo.resets.Create(context.Background(), user.ID, "jane@example.com", time.Hour)
	require.NoError(t, err)

	handler := NewFinalizePasswordResetHandler(f.auther)
	require.NoError(t, handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:          first.Token,
		Password:       "brand-new-secret",
		PasswordRepeat: "brand-new-secret",
	}))

	err = handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:          second.Token,
		Password:       "another-secret!",
		PasswordRepeat: "another-secret!",
	})
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}

func TestPasswordResetFinalizeValidation(t *testing.T) {
	f := newAutherFixture(t)
	handler := NewFinalizePasswordResetHandler(f.auther)

	tests := []struct {
		name string
		msg  FinalizePasswordResetMessage
	}{
		{"missing token", FinalizePasswordResetMessage{Password: "brand-new-secret", PasswordRepeat: "brand-new-secret"}},
		{"short password", FinalizePasswordResetMessage{Token: "tok", Password: "short", PasswordRepeat: "short"}},
		{"mismatched repeat", FinalizePasswordResetMessage{Token: "tok", Password: "brand-new-secret", PasswordRepeat: "different-secret"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, handler.Execute(context.Background(), tc.msg))
		})
	}
}

func TestPasswordResetFinalizeExpiredToken(t *testing.T) {
	f := newAutherFixture(t)
	user := f.addUser(t, "jane@example.com", "old-secret!")
	reset, err := f.repo.resets.Create(context.Background(), user.ID, "jane@example.com", -time.Hour)
	require.NoError(t, err)

	handler := NewFinalizePasswordResetHandler(f.auther)
	err = handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:          reset.Token,
		Password:       "brand-new-secret",
		PasswordRepeat: "brand-new-secret",
	})
	assert.ErrorIs(t, err, ErrTokenInvalidOrExpired)
}
