package auth

import "context"

// Roles understood by the API. Coordinators maintain trial data, finance
// reads the money reports, viewers get read-only access to everything
// else. Admin bypasses all role checks.
const (
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
	RoleFinance     = "finance"
	RoleViewer      = "viewer"
)

// Identity describes the authenticated caller for the lifetime of one
// request. Site is the practice the caller belongs to when the identity
// provider scopes accounts that way; audit entries record it.
type Identity struct {
	Subject string
	Site    string
	Roles   []string
}

// Allows reports whether the identity satisfies a role requirement.
// Admins satisfy every requirement.
func (id Identity) Allows(role string) bool {
	for _, r := range id.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a context carrying the caller's identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the caller's identity from a request context.
// The second return is false when no auth middleware ran.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
