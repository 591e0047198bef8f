package auth

import "context"

type identityKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, role Role, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, Role: role})
}

// IdentityFrom returns the caller stored in ctx, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RoleFromContext returns the caller's role or "".
func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFrom(ctx)
	return id.Role
}

// SubjectFromContext returns the caller's user id or "".
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.UserID
}
