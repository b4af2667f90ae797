// Package registry tracks the live session of every connected user.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/PaulBabatuyi/collab-chat/internal/event"
)

// Session is a handle on one live client connection.
type Session interface {
	// ID identifies the connection, distinct from the user bound to it.
	ID() string
	// Emit writes one frame to the client.
	Emit(event.Envelope) error
}

// Emit writes e to s. A panicking session is reported as an error so one
// broken connection cannot take down a fan-out.
func Emit(s Session, e event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session %s: emit panicked: %v", s.ID(), r)
		}
	}()
	return s.Emit(e)
}

// Registry maps a logical user id to at most one live session. A later Bind
// for the same user replaces the earlier session (last connection wins).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{sessions: make(map[string]Session), logger: logger}
}

// Bind associates s with userID and returns the session it replaced, if any.
// The replaced session is not closed; its transport ends on its own.
func (r *Registry) Bind(userID string, s Session) Session {
	r.mu.Lock()
	prev := r.sessions[userID]
	r.sessions[userID] = s
	r.mu.Unlock()

	if prev != nil && prev.ID() != s.ID() {
		r.logger.Info("session replaced", "user_id", userID, "old_session", prev.ID(), "new_session", s.ID())
	}
	return prev
}

// Unbind removes the binding for userID. It is a no-op when none exists.
func (r *Registry) Unbind(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Lookup returns the live session for userID.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Count returns the number of bound users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
