package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthContextRoundTrip(t *testing.T) {
	authCtx := &AuthContext{
		User:  &UserInfo{ID: "abc", Handle: "jane"},
		Roles: []Role{"member"},
	}

	ctx := WithContext(context.Background(), authCtx)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, authCtx, got)
}

func TestFromContextMissing(t *testing.T) {
	got, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCurrentUser(t *testing.T) {
	assert.Nil(t, CurrentUser(context.Background()))

	guest := WithContext(context.Background(), &AuthContext{})
	assert.Nil(t, CurrentUser(guest))

	user := &UserInfo{ID: "abc", Handle: "jane"}
	ctx := WithContext(context.Background(), &AuthContext{User: user})
	assert.Same(t, user, CurrentUser(ctx))
}
