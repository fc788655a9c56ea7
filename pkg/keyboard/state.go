package keyboard

import (
	"context"
	"sync"
	"time"
)

// DefaultHoldTimeout covers the gap between a terminal's first key byte and
// its auto-repeat.
const DefaultHoldTimeout = 600 * time.Millisecond

// State tracks held keys from a stream of events. Sources that never send a
// release (terminals) are handled by expiring a press after the hold timeout
// unless it is repeated.
type State struct {
	mu        sync.Mutex
	hold      time.Duration
	now       func() time.Time
	held      map[Key]time.Time
	triggered map[Key]bool
}

// NewState returns a tracker with the given hold timeout. A timeout of zero
// keeps keys held until their release event.
func NewState(hold time.Duration) *State {
	return &State{
		hold:      hold,
		now:       time.Now,
		held:      make(map[Key]time.Time),
		triggered: make(map[Key]bool),
	}
}

// Apply records one event.
func (s *State) Apply(ev Event) {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Pressed {
		s.held[ev.Key] = at
		s.triggered[ev.Key] = true
		return
	}
	delete(s.held, ev.Key)
}

// IsPressed reports whether k is held now.
func (s *State) IsPressed(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.held[k]
	if !ok {
		return false
	}
	if s.hold > 0 && s.now().Sub(at) > s.hold {
		delete(s.held, k)
		return false
	}
	return true
}

// Triggered reports whether k was pressed since the previous Triggered call
// for k, even if it has been released since.
func (s *State) Triggered(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.triggered[k]
	delete(s.triggered, k)
	return t
}

// Run applies events from src until ctx ends or src closes its channel.
func (s *State) Run(ctx context.Context, src Source) {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Apply(ev)
		}
	}
}
