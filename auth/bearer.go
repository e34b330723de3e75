package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/symstream/internal/jwtauth"
)

// BearerOption configures token validation (issuer, audiences, scopes,
// algorithms, leeway).
type BearerOption func(*jwtauth.Config)

// WithIssuer requires the "iss" claim to match issuer.
func WithIssuer(issuer string) BearerOption {
	return func(c *jwtauth.Config) { c.Issuer = issuer }
}

// WithAudiences requires the "aud" claim to contain at least one of the
// provided audiences. The first entry should be the production endpoint.
func WithAudiences(aud ...string) BearerOption {
	return func(c *jwtauth.Config) {
		c.ExpectedAudiences = append([]string(nil), aud...)
	}
}

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) BearerOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) BearerOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
func WithAllowedAlgs(algs ...string) BearerOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) BearerOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

func buildConfig(opts []BearerOption) *jwtauth.Config {
	cfg := jwtauth.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewHMAC returns an Authenticator for JWTs signed with a shared secret
// (HS256 unless WithAllowedAlgs says otherwise).
func NewHMAC(secret []byte, opts ...BearerOption) (Authenticator, error) {
	internal, err := jwtauth.NewHMAC(buildConfig(opts), secret)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// NewFromJWKS returns an Authenticator verifying JWTs against the keys
// published at jwksURL. Keys refresh in the background until ctx ends.
func NewFromJWKS(ctx context.Context, jwksURL string, opts ...BearerOption) (Authenticator, error) {
	internal, err := jwtauth.NewJWKS(ctx, buildConfig(opts), jwksURL)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// NewFromDiscovery returns an Authenticator verifying JWTs issued by issuer,
// whose JWKS location is learned through OpenID Connect discovery.
func NewFromDiscovery(ctx context.Context, issuer string, opts ...BearerOption) (Authenticator, error) {
	cfg := buildConfig(opts)
	cfg.Issuer = issuer
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the transport.
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return ui, nil
}
