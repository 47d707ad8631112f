// Package auth carries the authenticated caller through a request.
//
// Tokens are verified upstream (API Gateway authorizer or reverse proxy),
// which forwards the caller as X-User-Email and X-User-Role headers.
// Administrative access is a capability of the admin role.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/grocery-orderflow/internal/apperr"
)

const (
	HeaderEmail = "X-User-Email"
	HeaderRole  = "X-User-Role"
)

// Role is the capability set of a principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	Email string
	Role  Role
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool { return p.Email != "" }

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Authenticated() && p.Role == RoleAdmin }

// RequireAuthenticated fails with ErrUnauthenticated for anonymous callers.
func RequireAuthenticated(p Principal) error {
	if !p.Authenticated() {
		return apperr.New(apperr.ErrUnauthenticated, "authentication required")
	}
	return nil
}

// RequireAdmin fails unless p is an authenticated admin.
func RequireAdmin(p Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperr.New(apperr.ErrForbidden, "admin access required")
	}
	return nil
}

// RequireSelfOrAdmin fails unless p is the user identified by email or an admin.
func RequireSelfOrAdmin(p Principal, email string) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if p.IsAdmin() || NormalizeEmail(email) == p.Email {
		return nil
	}
	return apperr.New(apperr.ErrForbidden, "not allowed to access another user's orders")
}

// NormalizeEmail trims and lowercases an address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FromRequest extracts the principal forwarded by the upstream authenticator.
// Unknown roles degrade to RoleCustomer.
func FromRequest(r *http.Request) Principal {
	p := Principal{Email: NormalizeEmail(r.Header.Get(HeaderEmail))}
	if p.Email == "" {
		return Principal{}
	}
	switch Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))) {
	case RoleAdmin:
		p.Role = RoleAdmin
	default:
		p.Role = RoleCustomer
	}
	return p
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, or the zero Principal.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(ctxKey{}).(Principal)
	return p
}

// Middleware attaches the forwarded principal to the request context.
// It never rejects; handlers decide what each route requires.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := FromRequest(c.Request)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}
