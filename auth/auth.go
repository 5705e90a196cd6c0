/*
Package auth resolves caller identity and gates mutating operations.

PURPOSE:
  Every mutating entry point first resolves the caller from a bearer token
  and checks membership in the persisted admin allowlist. A missing or
  invalid token is Unauthenticated; a valid caller outside the allowlist is
  PermissionDenied. Both abort the request before any write.

TOKENS:
  HS256 JWTs with the caller id in the standard "sub" claim and an optional
  display "name". The signing method list is pinned; tokens signed any
  other way are rejected outright.

SEE ALSO:
  - billing/store.go: AllowlistStore
  - api/server.go:    middleware wiring
*/
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hosteldesk/billing-engine/billing"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the resolved caller.
type Identity struct {
	CallerID string
	Name     string
}

// Claims are the JWT claims this service understands.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 bearer token and returns the caller identity.
func ParseToken(tokenString string, secret []byte) (*Identity, error) {
	if tokenString == "" {
		return nil, billing.ErrUnauthenticated
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, billing.ErrUnauthenticated
	}
	return &Identity{CallerID: claims.Subject, Name: claims.Name}, nil
}

// =============================================================================
// CONTEXT PLUMBING
// =============================================================================

type contextKey struct{}

// WithIdentity attaches the caller to the request context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the caller, or nil when unauthenticated.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// =============================================================================
// GATE
// =============================================================================

// Gate checks the caller against the admin allowlist.
type Gate struct {
	Allowlist billing.AllowlistStore
}

func NewGate(store billing.AllowlistStore) *Gate {
	return &Gate{Allowlist: store}
}

// Authorize returns nil only for an authenticated admin. No partial
// execution: callers run this before touching any store.
func (g *Gate) Authorize(ctx context.Context) error {
	id := IdentityFrom(ctx)
	if id == nil || id.CallerID == "" {
		return billing.ErrUnauthenticated
	}
	admin, err := g.Allowlist.IsAdmin(ctx, id.CallerID)
	if err != nil {
		return fmt.Errorf("check allowlist: %w", err)
	}
	if !admin {
		return fmt.Errorf("%w: %s", billing.ErrPermissionDenied, id.CallerID)
	}
	return nil
}
