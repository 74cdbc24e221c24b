package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestResolve_HeaderPriority(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"trace id wins over everything",
			map[string]string{
				"X-Trace-ID":       "trace-1",
				"X-Request-ID":     "req-1",
				"X-Correlation-ID": "corr-1",
				"Traceparent":      "00-abc123-def456-01",
			},
			"trace-1",
		},
		{
			"request id wins over correlation id",
			map[string]string{
				"X-Request-ID":     "req-1",
				"X-Correlation-ID": "corr-1",
			},
			"req-1",
		},
		{
			"correlation id wins over traceparent",
			map[string]string{
				"X-Correlation-ID": "corr-1",
				"Traceparent":      "00-abc123-def456-01",
			},
			"corr-1",
		},
		{
			"traceparent trace-id segment",
			map[string]string{"Traceparent": "00-abc123-def456-01"},
			"abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := Resolve(h); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolve_GeneratesWhenAbsent(t *testing.T) {
	a := Resolve(http.Header{})
	b := Resolve(http.Header{})
	if a == "" || b == "" {
		t.Fatal("generated id must not be empty")
	}
	if a == b {
		t.Error("generated ids must be unique per request")
	}
}

func TestResolve_MalformedTraceparent(t *testing.T) {
	h := http.Header{}
	h.Set("Traceparent", "garbage")
	if got := Resolve(h); got == "" || got == "garbage" {
		t.Errorf("malformed traceparent should fall back to a generated id, got %q", got)
	}
}

func TestFromContext_Empty(t *testing.T) {
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestMiddleware_BindsContextAndHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "abc-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := Middleware()(func(c echo.Context) error {
		seen = FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if seen != "abc-123" {
		t.Errorf("context trace id = %q, want abc-123", seen)
	}
	if got := rec.Header().Get(ResponseHeader); got != "abc-123" {
		t.Errorf("response header = %q, want abc-123", got)
	}
}

func TestMiddleware_ConcurrentRequestsIsolated(t *testing.T) {
	e := echo.New()
	mw := Middleware()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a'+n%26)) + "-trace"
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Trace-ID", id)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := mw(func(c echo.Context) error {
				if got := FromContext(c.Request().Context()); got != id {
					errs <- &mismatchError{want: id, got: got}
				}
				return nil
			})
			if err := h(c); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

type mismatchError struct{ want, got string }

func (e *mismatchError) Error() string {
	return "trace id leaked across requests: want " + e.want + ", got " + e.got
}
