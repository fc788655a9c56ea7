package keyboard

import (
	"sync"
	"time"
)

// Feed is a Source driven by code: the websocket control channel and tests.
type Feed struct {
	events chan Event
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

// NewFeed returns a feed buffering up to size events.
func NewFeed(size int) *Feed {
	return &Feed{
		events: make(chan Event, size),
		closed: make(chan struct{}),
	}
}

// Send queues ev. It blocks while the buffer is full and reports false once
// the feed is closed.
func (f *Feed) Send(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	select {
	case <-f.closed:
		return false
	default:
	}
	select {
	case f.events <- ev:
		return true
	case <-f.closed:
		return false
	}
}

// Press sends a key-down event.
func (f *Feed) Press(k Key) bool { return f.Send(Event{Key: k, Pressed: true}) }

// Release sends a key-up event.
func (f *Feed) Release(k Key) bool { return f.Send(Event{Key: k}) }

// Events implements Source.
func (f *Feed) Events() <-chan Event { return f.events }

// Close stops the feed and closes its channel.
func (f *Feed) Close() error {
	f.once.Do(func() {
		close(f.closed)
		f.mu.Lock()
		close(f.events)
		f.mu.Unlock()
	})
	return nil
}
