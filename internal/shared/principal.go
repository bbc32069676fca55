package shared

import "context"

// UserStatus values persisted on user rows.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Principal is the resolved identity presented to the authorization gate for
// one request: who is calling and which permission keys they hold. Inactive
// users always carry an empty set.
type Principal struct {
	UserID      int64
	Status      string
	Permissions map[string]struct{}
}

// Has reports whether the principal holds the given permission key.
func (p Principal) Has(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the resolved principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
