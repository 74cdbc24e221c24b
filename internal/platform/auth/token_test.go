package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func TestDemoToken_Roundtrip(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.GenerateDemoToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	id, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "demo-user-123" {
		t.Errorf("subject = %q", id.Subject)
	}
	if id.Email != "demo@example.com" {
		t.Errorf("email = %q", id.Email)
	}
	if id.Name != "Demo User" {
		t.Errorf("name = %q", id.Name)
	}
	if !id.HasRole("user") || !id.HasRole("admin") {
		t.Errorf("roles = %v, want user and admin", id.Roles)
	}
	if id.IssuedAt.IsZero() {
		t.Error("issued-at not decoded")
	}
}

func TestCustomToken_Defaults(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.GenerateCustomToken("", "", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Email != "custom@example.com" {
		t.Errorf("email default = %q", id.Email)
	}
	if id.Name != "Custom User" {
		t.Errorf("name default = %q", id.Name)
	}
	if len(id.Roles) != 1 || id.Roles[0] != "user" {
		t.Errorf("roles default = %v", id.Roles)
	}
}

func TestCustomToken_Explicit(t *testing.T) {
	svc := NewTokenService(testSecret)

	token, err := svc.GenerateCustomToken("alice@example.com", "Alice", []string{"admin"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Email != "alice@example.com" || id.Name != "Alice" {
		t.Errorf("identity = %+v", id)
	}
	if !id.HasRole("admin") || id.HasRole("user") {
		t.Errorf("roles = %v, want only admin", id.Roles)
	}
}

func TestVerify_Failures(t *testing.T) {
	svc := NewTokenService(testSecret)
	other := NewTokenService("a-completely-different-secret")

	goodFromOther, err := other.GenerateDemoToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	expired := signTestToken(t, jwt.RegisteredClaims{
		Subject:   "demo-user-123",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, []byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"wrong secret", goodFromOther},
		{"expired", expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			if err == nil {
				t.Fatal("expected verification failure")
			}
			ae := apperror.Classify(err)
			if ae.Kind != apperror.KindUnauthenticated {
				t.Errorf("kind = %s, want UNAUTHENTICATED", ae.Kind)
			}
			// Failure modes must be indistinguishable.
			if ae.Message != "invalid or expired token" {
				t.Errorf("message = %q", ae.Message)
			}
		})
	}
}

func TestVerify_RejectsUnexpectedAlgorithm(t *testing.T) {
	svc := NewTokenService(testSecret)

	// alg "none" style forgery.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "demo-user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.Verify(signed); err == nil {
		t.Fatal("token with alg=none must be rejected")
	}
}

func signTestToken(t *testing.T, c jwt.RegisteredClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}
