// Package keyboard delivers key presses as events and tracks which keys are
// currently held, so control loops can ask "is w down?" without polling the
// keyboard themselves.
package keyboard

import (
	"strings"
	"time"
)

// Key names a control key.
type Key string

const (
	KeyW     Key = "w"
	KeyA     Key = "a"
	KeyS     Key = "s"
	KeyD     Key = "d"
	KeyUp    Key = "up"
	KeyDown  Key = "down"
	KeyLeft  Key = "left"
	KeyRight Key = "right"
	KeyEsc   Key = "esc"
	KeyX     Key = "x"
	KeyQ     Key = "q"
)

var knownKeys = map[Key]struct{}{
	KeyW: {}, KeyA: {}, KeyS: {}, KeyD: {},
	KeyUp: {}, KeyDown: {}, KeyLeft: {}, KeyRight: {},
	KeyEsc: {}, KeyX: {}, KeyQ: {},
}

// ParseKey accepts a key name in any case; "escape" is an alias for esc.
func ParseKey(name string) (Key, bool) {
	k := Key(strings.ToLower(strings.TrimSpace(name)))
	if k == "escape" {
		k = KeyEsc
	}
	_, ok := knownKeys[k]
	return k, ok
}

// Event is a key going down (Pressed) or up.
type Event struct {
	Key     Key       `json:"key"`
	Pressed bool      `json:"pressed"`
	At      time.Time `json:"-"`
}

// Source produces key events until closed. The channel is closed when the
// source stops.
type Source interface {
	Events() <-chan Event
	Close() error
}
