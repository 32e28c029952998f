// Package session serializes message processing per conversation session.
// Two messages in the same session never interleave, while different
// sessions proceed concurrently.
package session

import "sync"

// Serializer hands out one mutex per session ID. Entries are reference
// counted and removed when the last holder releases, so idle sessions do
// not accumulate.
type Serializer struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewSerializer creates an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{locks: make(map[string]*entry)}
}

// Lock acquires the session's lock, blocking while another message in the
// same session is being processed. The returned func releases it.
func (s *Serializer) Lock(sessionID string) (unlock func()) {
	s.mu.Lock()
	e, ok := s.locks[sessionID]
	if !ok {
		e = &entry{}
		s.locks[sessionID] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}
