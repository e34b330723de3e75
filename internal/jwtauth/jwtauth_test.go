package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
	omitJWKS bool
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		meta := map[string]any{
			"issuer":                   m.issuer,
			"authorization_endpoint":   m.issuer + "/oauth2/auth",
			"token_endpoint":           m.issuer + "/oauth2/token",
			"response_types_supported": []string{"code"},
		}
		if !m.omitJWKS {
			meta["jwks_uri"] = m.issuer + m.jwksPath
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meta)
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	t.Cleanup(m.srv.Close)
	return m
}

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signRSA(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func signHMAC(t *testing.T, method jwt.SigningMethod, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(iss, aud string) jwt.MapClaims {
	now := time.Now()
	c := jwt.MapClaims{
		"sub": "user-123",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	if iss != "" {
		c["iss"] = iss
	}
	if aud != "" {
		c["aud"] = aud
	}
	return c
}

func TestHMAC_HappyPath(t *testing.T) {
	secret := []byte("s3cr3t")
	cfg := DefaultConfig()
	cfg.Leeway = 0
	a, err := NewHMAC(cfg, secret)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	claims := validClaims("", "")
	claims["scope"] = "foxes:read"
	ui, err := a.CheckAuthentication(context.Background(), signHMAC(t, jwt.SigningMethodHS256, secret, claims))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-123" {
		t.Fatalf("want sub user-123, got %s", ui.UserID())
	}

	var out struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&out); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if out.Scope != "foxes:read" {
		t.Fatalf("scope roundtrip mismatch: %q", out.Scope)
	}
}

func TestHMAC_Rejections(t *testing.T) {
	secret := []byte("s3cr3t")
	cfg := DefaultConfig()
	cfg.Issuer = "https://issuer.example"
	cfg.ExpectedAudiences = []string{"https://foxes.example/foxes"}
	cfg.Leeway = 0
	a, err := NewHMAC(cfg, secret)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	good := func() jwt.MapClaims { return validClaims(cfg.Issuer, cfg.ExpectedAudiences[0]) }

	tests := []struct {
		name string
		tok  func() string
	}{
		{"empty", func() string { return "" }},
		{"wrong secret", func() string { return signHMAC(t, jwt.SigningMethodHS256, []byte("other"), good()) }},
		{"disallowed alg", func() string { return signHMAC(t, jwt.SigningMethodHS512, secret, good()) }},
		{"expired", func() string {
			c := good()
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return signHMAC(t, jwt.SigningMethodHS256, secret, c)
		}},
		{"missing exp", func() string {
			c := good()
			delete(c, "exp")
			return signHMAC(t, jwt.SigningMethodHS256, secret, c)
		}},
		{"issuer mismatch", func() string {
			c := good()
			c["iss"] = "https://evil.example"
			return signHMAC(t, jwt.SigningMethodHS256, secret, c)
		}},
		{"audience mismatch", func() string {
			c := good()
			c["aud"] = "https://unknown"
			return signHMAC(t, jwt.SigningMethodHS256, secret, c)
		}},
		{"missing sub", func() string {
			c := good()
			delete(c, "sub")
			return signHMAC(t, jwt.SigningMethodHS256, secret, c)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.CheckAuthentication(context.Background(), tt.tok()); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("want ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestHMAC_AudienceArray(t *testing.T) {
	secret := []byte("s3cr3t")
	cfg := DefaultConfig()
	cfg.ExpectedAudiences = []string{"https://foxes.example/foxes", "http://localhost:8080/foxes"}
	a, err := NewHMAC(cfg, secret)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	claims := validClaims("", "")
	claims["aud"] = []string{"https://other", "http://localhost:8080/foxes"}
	if _, err := a.CheckAuthentication(context.Background(), signHMAC(t, jwt.SigningMethodHS256, secret, claims)); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestHMAC_Scopes(t *testing.T) {
	secret := []byte("s3cr3t")

	all := DefaultConfig()
	all.RequiredScopes = []string{"foxes:read", "foxes:admin"}
	aAll, err := NewHMAC(all, secret)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	anyCfg := DefaultConfig()
	anyCfg.RequiredScopes = []string{"foxes:read", "foxes:admin"}
	anyCfg.ScopeModeAny = true
	aAny, err := NewHMAC(anyCfg, secret)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	claims := validClaims("", "")
	claims["scope"] = "foxes:read"
	tok := signHMAC(t, jwt.SigningMethodHS256, secret, claims)

	if _, err := aAll.CheckAuthentication(context.Background(), tok); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
	if _, err := aAny.CheckAuthentication(context.Background(), tok); err != nil {
		t.Fatalf("any-scope check: %v", err)
	}
}

func TestHMAC_ConfigValidation(t *testing.T) {
	if _, err := NewHMAC(nil, []byte("x")); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := NewHMAC(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	cfg := DefaultConfig()
	cfg.AllowedAlgs = []string{"HS256", "ES256"}
	if _, err := NewHMAC(cfg, []byte("x")); err == nil {
		t.Fatalf("expected error for asymmetric alg")
	}
}

func TestJWKS_HappyPath(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "https://foxes.example/foxes"
	cfg := DefaultConfig()
	cfg.Issuer = oidc.issuer
	cfg.ExpectedAudiences = []string{aud}
	cfg.Leeway = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := NewJWKS(ctx, cfg, oidc.issuer+oidc.jwksPath)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ui, err := a.CheckAuthentication(ctx, signRSA(t, pk, kid, validClaims(oidc.issuer, aud)))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-123" {
		t.Fatalf("want sub user-123, got %s", ui.UserID())
	}

	other, _, _ := genRSA(t)
	if _, err := a.CheckAuthentication(ctx, signRSA(t, other, kid, validClaims(oidc.issuer, aud))); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for foreign key, got %v", err)
	}
}

func TestDiscovery_HappyPath(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "https://foxes.example/foxes"
	cfg := DefaultConfig()
	cfg.Issuer = oidc.issuer
	cfg.ExpectedAudiences = []string{aud}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, signRSA(t, pk, kid, validClaims(oidc.issuer, aud))); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, signRSA(t, pk, kid, validClaims("https://evil.example", aud))); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for issuer mismatch, got %v", err)
	}
}

func TestDiscovery_MissingJWKS(t *testing.T) {
	_, _, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)
	oidc.omitJWKS = true

	cfg := DefaultConfig()
	cfg.Issuer = oidc.issuer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := NewFromDiscovery(ctx, cfg); err == nil {
		t.Fatalf("expected error due to missing jwks_uri")
	}
}
