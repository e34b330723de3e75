package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for bearer tokens. Issuer and
// ExpectedAudiences are enforced when set.
type Config struct {
	Issuer            string
	ExpectedAudiences []string
	RequiredScopes    []string
	ScopeModeAny      bool // if true, any of RequiredScopes is sufficient; else all are required
	AllowedAlgs       []string
	Leeway            time.Duration
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// UserInfo is the internal user claims carrier for validated tokens.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates bearer tokens and returns a minimal UserInfo.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// ErrUnauthorized indicates that the token failed validation (signature,
// issuer, audience, exp/nbf).
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrInsufficientScope indicates the token was valid but did not satisfy the
// required scopes policy.
var ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")

var hmacAlgs = []string{"HS256", "HS384", "HS512"}

type authenticator struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

var _ Authenticator = (*authenticator)(nil)

// NewHMAC validates tokens signed with a shared secret. AllowedAlgs defaults
// to HS256 and may only name HMAC algorithms.
func NewHMAC(cfg *Config, secret []byte) (*authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	c := *cfg
	if len(c.AllowedAlgs) == 0 || slices.Equal(c.AllowedAlgs, DefaultConfig().AllowedAlgs) {
		c.AllowedAlgs = []string{"HS256"}
	}
	for _, alg := range c.AllowedAlgs {
		if !slices.Contains(hmacAlgs, alg) {
			return nil, fmt.Errorf("alg %s cannot be used with a shared secret", alg)
		}
	}
	key := append([]byte(nil), secret...)
	return &authenticator{cfg: c, keyfunc: func(t *jwt.Token) (any, error) {
		return key, nil
	}}, nil
}

// NewJWKS validates tokens against a JWKS endpoint. Keys are refreshed in the
// background until ctx is cancelled.
func NewJWKS(ctx context.Context, cfg *Config, jwksURI string) (*authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	c := *cfg
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = DefaultConfig().AllowedAlgs
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &authenticator{cfg: c, keyfunc: kf.Keyfunc}, nil
}

// NewFromDiscovery performs OIDC discovery to obtain the issuer's jwks_uri and
// validates tokens against it. cfg.Issuer is required.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	c := *cfg
	c.Issuer = meta.Issuer
	return NewJWKS(ctx, &c, meta.JwksURI)
}

func (a *authenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	parsed, err := jwt.NewParser(opts...).Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if len(a.cfg.ExpectedAudiences) > 0 && !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	if len(a.cfg.RequiredScopes) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := strings.Fields(scopeStr)
		if a.cfg.ScopeModeAny {
			if !slices.ContainsFunc(a.cfg.RequiredScopes, func(s string) bool { return slices.Contains(have, s) }) {
				return nil, ErrInsufficientScope
			}
		} else {
			for _, want := range a.cfg.RequiredScopes {
				if !slices.Contains(have, want) {
					return nil, ErrInsufficientScope
				}
			}
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

func audIntersects(aud any, wants []string) bool {
	switch v := aud.(type) {
	case string:
		return slices.Contains(wants, v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && slices.Contains(wants, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(wants, s) {
				return true
			}
		}
	}
	return false
}
