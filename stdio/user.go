package stdio

import (
	"cmp"
	"fmt"
	"os/user"
)

// UserProvider names the local principal a stdio session is logged under.
// There is no bearer token on stdio; the reader is whoever runs the process.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// OSUserProvider reports the login name of the process owner, or the
// numeric uid for accounts without one.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("lookup current user: %w", err)
	}
	return cmp.Or(u.Username, u.Uid), nil
}

// StaticUser is a UserProvider that always reports the same id.
type StaticUser string

func (u StaticUser) CurrentUserID() (string, error) { return string(u), nil }
