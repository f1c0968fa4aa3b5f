package principal

import (
	"context"
	"errors"
)

// Role is the role of an authenticated principal.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleOperator Role = "operator"
)

var ErrInvalidRole = errors.New("invalid role")

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	switch s {
	case RoleOwner.String():
		return RoleOwner, nil
	case RoleOperator.String():
		return RoleOperator, nil
	default:
		return "", ErrInvalidRole
	}
}

// Principal is an already-authenticated actor. Credential verification happens
// upstream; the service only ever sees the identifier and the role.
type Principal struct {
	ID   string
	Role Role
}

type contextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal placed into the context by the transport.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
