package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindUnauthorized, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "msg")
			if e.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, e.Status)
			}
		})
	}
}

func TestClassify_PassthroughAndWrapped(t *testing.T) {
	ae := NotFound("patient not found")

	if got := Classify(ae); got != ae {
		t.Errorf("expected same *Error back, got %+v", got)
	}

	wrapped := fmt.Errorf("resolver: %w", ae)
	got := Classify(wrapped)
	if got.Kind != KindNotFound {
		t.Errorf("expected NOT_FOUND through wrapping, got %s", got.Kind)
	}
	if got.Message != "patient not found" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestClassify_UnknownBecomesInternal(t *testing.T) {
	cause := errors.New("disk I/O error")
	got := Classify(cause)

	if got.Kind != KindInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %s", got.Kind)
	}
	if got.Message != "internal server error" {
		t.Errorf("cause must not leak into message, got %q", got.Message)
	}
	if !errors.Is(got, cause) {
		t.Error("cause should be reachable via errors.Is")
	}
}

func TestValidation_CarriesFields(t *testing.T) {
	e := Validation("validation failed", map[string]string{"email": "invalid email format"})
	if e.Fields["email"] != "invalid email format" {
		t.Errorf("field message lost: %+v", e.Fields)
	}
	if e.Error() != "validation failed" {
		t.Errorf("unexpected Error(): %q", e.Error())
	}
}

func TestIsKind(t *testing.T) {
	if !IsKind(Conflict("email already in use"), KindConflict) {
		t.Error("expected IsKind to match conflict")
	}
	if IsKind(errors.New("boom"), KindConflict) {
		t.Error("plain error must not match conflict")
	}
	if !IsKind(errors.New("boom"), KindInternal) {
		t.Error("plain error should classify as internal")
	}
}
