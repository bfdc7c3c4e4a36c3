package session

import (
	"sync"

	apperrors "github.com/kbukum/dbfixture/errors"
)

// Provider resolves to the session a caller should work with.
type Provider interface {
	Current() *Session
}

// Current makes a *Session its own Provider.
func (s *Session) Current() *Session { return s }

// Resolve returns the session behind p, failing on a nil provider or a
// provider that yields no session.
func Resolve(p Provider) (*Session, error) {
	if p == nil {
		return nil, apperrors.InvalidInput("session", "provider is nil")
	}
	s := p.Current()
	if s == nil {
		return nil, apperrors.InvalidInput("session", "provider returned no session")
	}
	return s, nil
}

// Factory creates sessions for a Registry.
type Factory func() *Session

// Registry is a scoped session: every Current call returns the same Session
// until Remove discards it.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	current *Session
}

// NewRegistry creates a registry that builds sessions with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory}
}

// Current returns the scoped session, creating it on first use.
func (r *Registry) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		r.current = r.factory()
	}
	return r.current
}

// Has reports whether a scoped session exists.
func (r *Registry) Has() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Remove closes and forgets the scoped session.
func (r *Registry) Remove() error {
	r.mu.Lock()
	s := r.current
	r.current = nil
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
