package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized means the bearer token was missing, malformed, expired
	// or otherwise rejected.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInsufficientScope means the token is valid but lacks a scope the
	// stream endpoint requires.
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

// UserInfo is the authenticated principal that owns the sessions opened
// with its token.
type UserInfo interface {
	UserID() string
	// Claims decodes the token's claims into ref.
	Claims(ref any) error
}

// Authenticator resolves a bearer token to its principal. Failures wrap
// ErrUnauthorized or ErrInsufficientScope; any other error is treated as an
// internal failure by transports.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts an ordinary function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}
