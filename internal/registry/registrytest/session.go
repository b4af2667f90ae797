// Package registrytest provides a recording registry.Session for tests.
package registrytest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/PaulBabatuyi/collab-chat/internal/event"

	"github.com/google/uuid"
)

// ErrEmit is returned by a failing Session.
var ErrEmit = errors.New("emit failed")

// Session records every emitted frame.
type Session struct {
	id string

	mu     sync.Mutex
	frames []event.Envelope
	fail   bool
	panics bool
}

// NewSession returns a session with a random id.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// Failing returns a session whose Emit always fails.
func Failing() *Session {
	s := NewSession()
	s.fail = true
	return s
}

// Panicking returns a session whose Emit panics.
func Panicking() *Session {
	s := NewSession()
	s.panics = true
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Emit(e event.Envelope) error {
	if s.panics {
		panic("emit on broken session")
	}
	if s.fail {
		return ErrEmit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, e)
	return nil
}

// Frames returns a copy of everything emitted so far.
func (s *Session) Frames() []event.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Envelope(nil), s.frames...)
}

// Of returns the frames of the given kind.
func (s *Session) Of(kind event.Kind) []event.Envelope {
	var out []event.Envelope
	for _, f := range s.Frames() {
		if f.Event == kind {
			out = append(out, f)
		}
	}
	return out
}

// Decode unmarshals the payload of f into v, panicking on malformed JSON.
func Decode[T any](f event.Envelope) T {
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		panic(err)
	}
	return v
}
