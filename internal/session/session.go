// Package session owns connected viewers: the capability interface their
// transports implement, the Session handle, and the concurrent Registry the
// broadcast and command sides share.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport is the capability set a viewer connection must provide. The
// broadcaster and dispatcher depend only on this interface, never on a
// concrete socket type.
type Transport interface {
	SendText(data []byte) error
	SendBinary(data []byte) error
	Close() error
	RemoteID() string
}

// Session is the handle to one connected viewer. It is owned by the
// Registry and always accessed by reference.
type Session struct {
	ID        string
	transport Transport
	closed    atomic.Bool
}

// New wraps a transport in a Session with a fresh ID.
func New(t Transport) *Session {
	return &Session{ID: uuid.NewString(), transport: t}
}

// SendText forwards a text message to the viewer.
func (s *Session) SendText(data []byte) error { return s.transport.SendText(data) }

// SendBinary forwards a binary message to the viewer.
func (s *Session) SendBinary(data []byte) error { return s.transport.SendBinary(data) }

// RemoteID identifies the peer for logging.
func (s *Session) RemoteID() string { return s.transport.RemoteID() }

// Close shuts the transport down once; repeated calls are no-ops.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.transport.Close()
}

// Alive reports whether Close has been called.
func (s *Session) Alive() bool { return !s.closed.Load() }

// Registry tracks connected sessions. Safe for concurrent add, remove and
// snapshot iteration from the broadcast loop and per-session readers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove deregisters a session. Removing an absent session is a no-op.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID)
}

// Snapshot returns the sessions registered at this instant for iteration.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
