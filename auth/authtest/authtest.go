// Package authtest provides authenticators for transport tests.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/symstream/auth"
)

// StaticTokens authenticates a fixed set of bearer tokens. Each key is a token
// and its value the user id it resolves to.
type StaticTokens map[string]string

var _ auth.Authenticator = StaticTokens(nil)

// CheckAuthentication returns auth.ErrUnauthorized for unknown tokens.
func (s StaticTokens) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	uid, ok := s[tok]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return user(uid), nil
}

// ScopeDenied authenticates nobody with enough scope.
type ScopeDenied struct{}

func (ScopeDenied) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return nil, auth.ErrInsufficientScope
}

type user string

func (u user) UserID() string { return string(u) }

func (u user) Claims(ref any) error {
	b, err := json.Marshal(map[string]string{"sub": string(u)})
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
