package session

import (
	"context"
	"sync"
)

// Scope owns at most one running operation of a logical action such as
// "send message". Beginning a new operation cancels the previous one.
type Scope struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin cancels the operation currently owned by the scope and returns the
// context of a new one. The returned func ends the new operation and reports
// whether it still owned the scope, i.e. no later Begin replaced it. It is
// safe to call more than once.
func (s *Scope) Begin(parent context.Context) (context.Context, func() bool) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	prev := s.cancel
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	return ctx, func() bool {
		s.mu.Lock()
		owned := s.gen == gen
		if owned {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
		return owned
	}
}

// Cancel aborts the operation the scope currently owns, if any.
func (s *Scope) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
