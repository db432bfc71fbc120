package identity

// RoleDefinition describes the permission set granted by a role
type RoleDefinition struct {
	Permissions []Permission
}

// DefaultRoles names the roles applied when no explicit assignment
// exists. Either entry may be empty.
type DefaultRoles struct {
	Authenticated   []Role
	Unauthenticated []Role
}

// RoleRegistry maps roles to permission sets. It is constructed once
// at startup and immutable afterwards; reads return copies so callers
// cannot mutate registry state.
type RoleRegistry struct {
	definitions map[Role]RoleDefinition
	defaults    DefaultRoles
}

// NewRoleRegistry builds an immutable registry from the given
// definitions and defaults. The inputs are deep copied.
func NewRoleRegistry(definitions map[Role]RoleDefinition, defaults DefaultRoles) *RoleRegistry {
	defs := make(map[Role]RoleDefinition, len(definitions))
	for role, def := range definitions {
		perms := make([]Permission, len(def.Permissions))
		copy(perms, def.Permissions)
		defs[role] = RoleDefinition{Permissions: perms}
	}

	return &RoleRegistry{
		definitions: defs,
		defaults: DefaultRoles{
			Authenticated:   copyRoles(defaults.Authenticated),
			Unauthenticated: copyRoles(defaults.Unauthenticated),
		},
	}
}

// DefaultAuthenticatedRoles returns the roles granted to any
// logged-in user, in addition to their stored roles
func (r *RoleRegistry) DefaultAuthenticatedRoles() []Role {
	return copyRoles(r.defaults.Authenticated)
}

// DefaultUnauthenticatedRoles returns the roles granted to guests
func (r *RoleRegistry) DefaultUnauthenticatedRoles() []Role {
	return copyRoles(r.defaults.Unauthenticated)
}

// HasPermission is true if ANY of the given roles grants the
// permission. Unknown roles contribute no permissions and are not an
// error.
func (r *RoleRegistry) HasPermission(roles []Role, permission Permission) bool {
	for _, role := range roles {
		def, ok := r.definitions[role]
		if !ok {
			continue
		}
		for _, p := range def.Permissions {
			if p == permission {
				return true
			}
		}
	}
	return false
}

// HasAccess is true iff EVERY required permission is granted by at
// least one role. An empty permission list is vacuously satisfied,
// even with zero roles.
func (r *RoleRegistry) HasAccess(roles []Role, permissions []Permission) bool {
	for _, p := range permissions {
		if !r.HasPermission(roles, p) {
			return false
		}
	}
	return true
}

// RequireAccess performs the HasAccess check and fails citing the
// first unsatisfied permission in list order.
func (r *RoleRegistry) RequireAccess(roles []Role, permissions []Permission) error {
	for _, p := range permissions {
		if !r.HasPermission(roles, p) {
			return ErrMissingPermission(p)
		}
	}
	return nil
}

func copyRoles(roles []Role) []Role {
	if roles == nil {
		return nil
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}
