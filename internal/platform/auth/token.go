// Package auth issues and verifies the demo bearer tokens and exposes
// the decoded identity to request handlers through the context.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/patientdesk/patientdesk/internal/platform/apperror"
)

// Identity is the decoded caller attached to a request for its
// lifetime. It is never persisted.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	Roles    []string
	IssuedAt time.Time
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// TokenService signs and verifies HS256 tokens with a pre-shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with a 24h token lifetime.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: 24 * time.Hour}
}

// GenerateDemoToken issues a token for the fixed demo user.
func (s *TokenService) GenerateDemoToken() (string, error) {
	return s.sign("demo-user-123", "demo@example.com", "Demo User", []string{"user", "admin"})
}

// GenerateCustomToken issues a token with caller-chosen identity data.
// Empty arguments fall back to the custom-user defaults.
func (s *TokenService) GenerateCustomToken(email, name string, roles []string) (string, error) {
	if email == "" {
		email = "custom@example.com"
	}
	if name == "" {
		name = "Custom User"
	}
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	sub := "custom-user-" + time.Now().UTC().Format("20060102150405")
	return s.sign(sub, email, name, roles)
}

func (s *TokenService) sign(sub, email, name string, roles []string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: email,
		Name:  name,
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the decoded identity.
// Malformed, badly signed, and expired tokens all fail the same way so
// the caller cannot distinguish them.
func (s *TokenService) Verify(token string) (*Identity, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, apperror.Unauthenticated("invalid or expired token")
	}

	id := &Identity{
		Subject: c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Roles:   c.Roles,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	return id, nil
}
