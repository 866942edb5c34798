// Package domain contains entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"strings"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// SessionID identifies one participant's connection to the signaling service.
// Every remote peer addresses this participant by it.
type SessionID string

func (id SessionID) String() string { return string(id) }

type User struct {
	ID       SessionID `json:"id"`
	Username string    `json:"username"`
}

// NewUser validates the name and binds it to a session.
func NewUser(id SessionID, username string) (*User, error) {
	u := &User{ID: id}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// FallbackName is the display name shown for a peer that never sent one.
func FallbackName(id SessionID) string {
	return "User-" + string(id)
}

// DisplayName returns name, or the fallback for id when name is blank.
func DisplayName(name string, id SessionID) string {
	if strings.TrimSpace(name) == "" {
		return FallbackName(id)
	}
	return name
}
