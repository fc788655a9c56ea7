// Package display abstracts the on-screen windows used by the flight tools.
// The OpenCV-backed implementation lives in display/cvwindow so packages that
// only need the interface do not link OpenCV.
package display

import (
	"image"
	"sync"
)

// NoKey is returned by WaitKey when no key was pressed.
const NoKey = -1

// Display shows images in named windows and reports keys typed into them.
type Display interface {
	// Show draws img in the window called name, creating it on first use.
	Show(name string, img image.Image) error
	// WaitKey pumps window events for up to delayMs and returns the key code
	// pressed, or NoKey.
	WaitKey(delayMs int) int
	Close() error
}

// Headless is a Display with no windows. It remembers what was shown and
// replays queued key codes, which makes it useful in tests.
type Headless struct {
	mu     sync.Mutex
	shown  map[string]int
	last   map[string]image.Image
	keys   []int
	closed bool
}

var _ Display = (*Headless)(nil)

// NewHeadless returns an empty headless display.
func NewHeadless() *Headless {
	return &Headless{shown: make(map[string]int), last: make(map[string]image.Image)}
}

// Show records img.
func (h *Headless) Show(name string, img image.Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown[name]++
	h.last[name] = img
	return nil
}

// QueueKey makes a later WaitKey return code.
func (h *Headless) QueueKey(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, code)
}

// WaitKey returns the next queued key without waiting.
func (h *Headless) WaitKey(int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.keys) == 0 {
		return NoKey
	}
	k := h.keys[0]
	h.keys = h.keys[1:]
	return k
}

// Close marks the display closed.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Shown is how many images window name received.
func (h *Headless) Shown(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shown[name]
}

// Last is the most recent image shown in window name.
func (h *Headless) Last(name string) image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last[name]
}

// Closed reports whether Close was called.
func (h *Headless) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
