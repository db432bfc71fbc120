package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermissionAnyRoleGrants(t *testing.T) {
	registry := testRegistry()

	assert.True(t, registry.HasPermission([]Role{"member"}, "users:read"))
	assert.True(t, registry.HasPermission([]Role{"member", "admin"}, "users:write"))
	assert.False(t, registry.HasPermission([]Role{"member"}, "users:write"))
	assert.False(t, registry.HasPermission(nil, "users:read"))
}

func TestHasPermissionUnknownRolesAreInert(t *testing.T) {
	registry := testRegistry()

	assert.False(t, registry.HasPermission([]Role{"ghost"}, "users:read"))
	assert.True(t, registry.HasPermission([]Role{"ghost", "member"}, "users:read"))
}

func TestHasAccessRequiresEveryPermission(t *testing.T) {
	registry := testRegistry()

	assert.True(t, registry.HasAccess([]Role{"admin"}, []Permission{"users:read", "users:write"}))
	assert.False(t, registry.HasAccess([]Role{"member"}, []Permission{"users:read", "users:write"}))
}

func TestHasAccessEmptyPermissionsVacuouslyTrue(t *testing.T) {
	registry := testRegistry()

	assert.True(t, registry.HasAccess(nil, nil))
	assert.True(t, registry.HasAccess([]Role{"ghost"}, []Permission{}))
}

func TestRequireAccessCitesFirstMissingPermission(t *testing.T) {
	registry := testRegistry()

	assert.NoError(t, registry.RequireAccess([]Role{"admin"}, []Permission{"users:read", "users:write"}))

	err := registry.RequireAccess([]Role{"member"}, []Permission{"users:read", "users:write", "billing:manage"})
	assert.Error(t, err)
	assert.True(t, IsAccessDenied(err))
	assert.Contains(t, err.Error(), "users:write")
}

func TestRegistryIsolatedFromCallerMutation(t *testing.T) {
	definitions := map[Role]RoleDefinition{
		"editor": {Permissions: []Permission{"posts:write"}},
	}
	defaults := DefaultRoles{Authenticated: []Role{"editor"}}

	registry := NewRoleRegistry(definitions, defaults)

	// mutating the construction inputs must not leak into the registry
	definitions["editor"] = RoleDefinition{Permissions: []Permission{"posts:delete"}}
	defaults.Authenticated[0] = "hacker"

	assert.True(t, registry.HasPermission([]Role{"editor"}, "posts:write"))
	assert.False(t, registry.HasPermission([]Role{"editor"}, "posts:delete"))
	assert.Equal(t, []Role{"editor"}, registry.DefaultAuthenticatedRoles())

	// and mutating returned slices must not write through either
	roles := registry.DefaultAuthenticatedRoles()
	roles[0] = "hacker"
	assert.Equal(t, []Role{"editor"}, registry.DefaultAuthenticatedRoles())
}
