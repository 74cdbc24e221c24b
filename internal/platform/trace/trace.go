// Package trace assigns a request-scoped trace identifier and carries it
// through the request's context so every log record for one request can
// be correlated. Concurrent requests never observe each other's id.
package trace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ResponseHeader is set on every HTTP response.
const ResponseHeader = "X-Trace-ID"

// inboundHeaders are consulted in priority order; first match wins.
var inboundHeaders = []string{"x-trace-id", "x-request-id", "x-correlation-id"}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the trace id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the trace id bound to ctx, or "" when none is set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Resolve determines the trace id for a request: an inbound trace header,
// then the trace-id segment of a W3C traceparent header, then a freshly
// generated id. It always succeeds.
func Resolve(h http.Header) string {
	for _, name := range inboundHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	if tp := h.Get("traceparent"); tp != "" {
		// traceparent: version-traceid-parentid-flags
		parts := strings.Split(tp, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return uuid.NewString()
}

// Middleware binds the resolved trace id into the request context and
// echoes it back in the response header.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := Resolve(c.Request().Header)
			ctx := NewContext(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(ResponseHeader, id)
			return next(c)
		}
	}
}
