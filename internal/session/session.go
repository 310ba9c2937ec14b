// Package session resolves the current user from a credential store.
package session

import "errors"

// ErrUnauthenticated is returned when no user id is resolvable.
var ErrUnauthenticated = errors.New("session: no authenticated user")

// CredentialStore is the opaque key-value credential collaborator.
// Consumers define this interface, not the storage implementation.
type CredentialStore interface {
	UserID() (string, bool)
}

// Session is the explicit session-context object passed into the cart
// aggregate and checkout orchestrator. One session per process.
type Session struct {
	creds CredentialStore
}

func New(creds CredentialStore) *Session {
	return &Session{creds: creds}
}

// UserID resolves the current user id or fails with ErrUnauthenticated.
func (s *Session) UserID() (string, error) {
	id, ok := s.creds.UserID()
	if !ok || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Static is a fixed-user credential store for tests and CLI wiring.
type Static string

func (s Static) UserID() (string, bool) {
	return string(s), s != ""
}
