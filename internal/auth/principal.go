package auth

import "context"

// Role is the identity provider's role claim.
type Role string

const (
	RolePatient   Role = "patient"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller. The core trusts it as supplied.
type Principal struct {
	UserID string
	Role   Role
}

// Is reports whether the principal holds one of the given roles.
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type ctxKey string

const principalKey ctxKey = "teletherapy.principal"

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
