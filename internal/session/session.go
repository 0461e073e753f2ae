// Package session holds the identity a client attaches to new events.
package session

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Identity is an immutable snapshot of who the client currently tracks.
type Identity struct {
	UserID string
	Traits map[string]interface{}
}

// Session pairs a fixed session id with a swappable identity snapshot.
// Readers always see a whole snapshot, never a partially updated one.
type Session struct {
	id       string
	identity atomic.Pointer[Identity]
}

// New generates a fresh session id of the form session-<uuid>.
func New() *Session {
	s := &Session{id: "session-" + uuid.NewString()}
	s.identity.Store(&Identity{})
	return s
}

// ID returns the session id; it never changes for the life of the session.
func (s *Session) ID() string {
	return s.id
}

// SetUser replaces the current identity. Events built earlier keep the
// identity they were built with.
func (s *Session) SetUser(userID string, traits map[string]interface{}) {
	copied := make(map[string]interface{}, len(traits))
	for k, v := range traits {
		copied[k] = v
	}
	s.identity.Store(&Identity{UserID: userID, Traits: copied})
}

// Current returns the identity visible to the next event.
func (s *Session) Current() *Identity {
	return s.identity.Load()
}
