package viewer

import "sync"

// Hub fans cloud updates out to subscribers. Each subscriber holds at most
// one pending update; a slow subscriber only ever sees the newest one.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan *CloudUpdate]struct{}
	latest *CloudUpdate
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan *CloudUpdate]struct{})}
}

// Subscribe returns a channel of updates, primed with the latest one if any,
// and a function that unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan *CloudUpdate, func()) {
	ch := make(chan *CloudUpdate, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.latest != nil {
		ch <- h.latest
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stores u as the latest update and hands it to every subscriber.
func (h *Hub) Publish(u *CloudUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = u
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- u
	}
}

// Latest is the last published update, or nil.
func (h *Hub) Latest() *CloudUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Subscribers is the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
