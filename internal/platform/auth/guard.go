package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying the decoded identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or nil when
// the request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// BearerToken extracts the token from an "Authorization: Bearer <t>"
// header. Any other form yields "".
func BearerToken(h http.Header) string {
	raw := h.Get("Authorization")
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// Middleware attaches the decoded identity to the request context when a
// valid bearer token is present. It never rejects: enforcement happens
// per operation via Require / RequireRoles so public operations stay
// reachable.
func Middleware(svc *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request().Header)
			if token != "" {
				if id, err := svc.Verify(token); err == nil {
					ctx := NewContext(c.Request().Context(), id)
					c.SetRequest(c.Request().WithContext(ctx))
				}
			}
			return next(c)
		}
	}
}

// Require returns the identity on ctx or an unauthenticated error. The
// missing-token and invalid-token cases are indistinguishable to the
// caller.
func Require(ctx context.Context) (*Identity, error) {
	id := IdentityFromContext(ctx)
	if id == nil {
		return nil, apperror.Unauthenticated("authentication required")
	}
	return id, nil
}

// RequireRoles additionally checks that the identity's role set
// intersects the required one.
func RequireRoles(ctx context.Context, roles ...string) (*Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if id.HasRole(r) {
			return id, nil
		}
	}
	return nil, apperror.Unauthorized("insufficient role")
}
