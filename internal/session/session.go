// Package session reads the persisted session created by the external login
// flow. The chat core only consumes it; it never issues or refreshes tokens.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrNoSession = errors.New("no session")

// Session is the locally persisted identity of the signed-in user.
type Session struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

// HasToken reports whether the session carries a usable bearer token.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// Load reads the session file written by the login flow. A missing file is
// ErrNoSession; anything unparseable is an error so callers do not chat as
// a half-read identity.
func Load(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	if s.UserID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Save writes the session file. Used by dev tooling and tests; production
// sessions are written by the login flow.
func Save(path string, s Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
