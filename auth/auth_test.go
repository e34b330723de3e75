package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewHMAC_MapsErrors(t *testing.T) {
	secret := []byte("fox-secret")
	a, err := NewHMAC(secret, WithAudiences("http://localhost:8080/foxes"), WithRequiredScopes("foxes:read"))
	if err != nil {
		t.Fatalf("NewHMAC: %v", err)
	}

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":   "vixen",
			"aud":   "http://localhost:8080/foxes",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"scope": "foxes:read",
		}
	}

	ui, err := a.CheckAuthentication(context.Background(), sign(base()))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "vixen" {
		t.Fatalf("want vixen, got %s", ui.UserID())
	}

	noScope := base()
	noScope["scope"] = "owls:read"
	if _, err := a.CheckAuthentication(context.Background(), sign(noScope)); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}

	if _, err := a.CheckAuthentication(context.Background(), "not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestNewFromDiscoveryRequiresIssuer(t *testing.T) {
	if _, err := NewFromDiscovery(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func TestChallenges(t *testing.T) {
	tests := []struct {
		name       string
		challenge  Challenge
		wantStatus int
		wantParts  []string
	}{
		{"required", NewAuthenticationRequired("foxes"), http.StatusUnauthorized, []string{`Bearer realm="foxes"`}},
		{"invalid header", NewInvalidAuthorizationHeader("foxes"), http.StatusBadRequest, []string{`error="invalid_request"`}},
		{"invalid token", ChallengeFor("foxes", ErrUnauthorized), http.StatusUnauthorized, []string{`error="invalid_token"`}},
		{"scope", ChallengeFor("foxes", errors.Join(ErrInsufficientScope, errors.New("x"))), http.StatusForbidden, []string{`error="insufficient_scope"`}},
		{"escaped realm", NewAuthenticationRequired(`a"b`), http.StatusUnauthorized, []string{`realm="a\"b"`}},
		{"resource metadata", NewAuthenticationRequired("foxes").WithResourceMetadata("https://x.test/.well-known/oauth-protected-resource/foxes"), http.StatusUnauthorized, []string{`Bearer realm="foxes", resource_metadata="https://x.test/.well-known/oauth-protected-resource/foxes"`}},
		{"no resource metadata", NewAuthenticationRequired("foxes").WithResourceMetadata(""), http.StatusUnauthorized, []string{`Bearer realm="foxes"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.challenge.Status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", tt.challenge.Status, tt.wantStatus)
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(tt.challenge.WWWAuthenticate, part) {
					t.Fatalf("header %q missing %q", tt.challenge.WWWAuthenticate, part)
				}
			}
		})
	}
}

type namedUser string

func (u namedUser) UserID() string     { return string(u) }
func (namedUser) Claims(ref any) error { return nil }

func TestAuthenticatorFunc(t *testing.T) {
	var a Authenticator = AuthenticatorFunc(func(ctx context.Context, tok string) (UserInfo, error) {
		if tok != "vixen-token" {
			return nil, ErrUnauthorized
		}
		return namedUser("vixen"), nil
	})

	u, err := a.CheckAuthentication(context.Background(), "vixen-token")
	if err != nil || u.UserID() != "vixen" {
		t.Fatalf("got %v, %v", u, err)
	}
	if _, err := a.CheckAuthentication(context.Background(), "other"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}
