package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Challenge describes an HTTP challenge (status + WWW-Authenticate header).
type Challenge struct {
	Status          int
	WWWAuthenticate string
}

// NewAuthenticationRequired builds a challenge for a request that carried no
// credentials.
func NewAuthenticationRequired(realm string) Challenge {
	return Challenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s"`, quote(realm)),
	}
}

// NewInvalidAuthorizationHeader builds a challenge for a malformed Authorization header.
func NewInvalidAuthorizationHeader(realm string) Challenge {
	return Challenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="invalid_request", error_description="Invalid Authorization header"`, quote(realm)),
	}
}

// NewInvalidToken builds a challenge indicating the token is invalid.
func NewInvalidToken(realm string, description string) Challenge {
	return Challenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="invalid_token", error_description="%s"`, quote(realm), quote(description)),
	}
}

// NewInsufficientScope builds a challenge indicating missing required scope.
func NewInsufficientScope(realm string) Challenge {
	return Challenge{
		Status:          http.StatusForbidden,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm="%s", error="insufficient_scope"`, quote(realm)),
	}
}

// ChallengeFor maps an error returned by an Authenticator to the challenge
// the transport should send.
func ChallengeFor(realm string, err error) Challenge {
	if errors.Is(err, ErrInsufficientScope) {
		return NewInsufficientScope(realm)
	}
	return NewInvalidToken(realm, "The access token is invalid or expired")
}

// WithResourceMetadata points the client at the protected resource metadata
// document describing where tokens for this resource are issued.
func (c Challenge) WithResourceMetadata(metadataURL string) Challenge {
	if metadataURL == "" {
		return c
	}
	c.WWWAuthenticate += fmt.Sprintf(`, resource_metadata="%s"`, quote(metadataURL))
	return c
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
