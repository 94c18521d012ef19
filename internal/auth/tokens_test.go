package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/zoner/backend/internal/models"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	token, claims, err := issuer.Sign("user-9", models.RoleAdmin, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}

	parsed, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.UserID != "user-9" || parsed.Role != models.RoleAdmin || parsed.ID != claims.ID {
		t.Fatalf("unexpected claims %+v", parsed)
	}
}

func TestTokenIssuerRejects(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	token, _, err := issuer.Sign("user-1", models.RoleUser, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other, err := NewTokenIssuer("another-secret-of-length", "zoner", "zoner-clients", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	otherAudience, err := NewTokenIssuer(testSecret, "zoner", "someone-else", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	expired, _, err := issuer.Sign("user-1", models.RoleUser, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"wrong secret", other, token},
		{"wrong audience", otherAudience, token},
		{"expired", issuer, expired},
		{"garbage", issuer, "not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.issuer.Parse(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected invalid token got %v", err)
			}
		})
	}
}

func TestNewTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer("short", "zoner", "clients", time.Hour); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewTokenIssuer(testSecret, "zoner", "clients", 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}
