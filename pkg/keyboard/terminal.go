package keyboard

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// TerminalSource reads key presses from a terminal in raw mode. Terminals do
// not report releases, so every event it sends is a press.
type TerminalSource struct {
	in     *os.File
	fd     int
	old    *term.State
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewTerminalSource puts in (normally os.Stdin) into raw mode and starts
// reading. Close restores the terminal.
func NewTerminalSource(in *os.File) (*TerminalSource, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("keyboard: input is not a terminal")
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("keyboard: failed to enter raw mode: %w", err)
	}
	s := &TerminalSource{
		in:     in,
		fd:     fd,
		old:    old,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events implements Source.
func (s *TerminalSource) Events() <-chan Event { return s.events }

// Close restores the terminal mode. A read already in progress finishes on
// the next key press; its result is discarded.
func (s *TerminalSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = term.Restore(s.fd, s.old)
	})
	return err
}

func (s *TerminalSource) readLoop() {
	defer close(s.events)
	buf := make([]byte, 64)
	for {
		n, err := s.in.Read(buf)
		if err != nil {
			return
		}
		now := time.Now()
		for _, k := range ParseBytes(buf[:n]) {
			select {
			case s.events <- Event{Key: k, Pressed: true, At: now}:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

// ParseBytes decodes one read from a raw-mode terminal into keys. Arrow keys
// arrive as ESC [ A..D (or ESC O A..D in application mode); an ESC not
// followed by one of those is the escape key itself. Ctrl-C maps to esc.
// Unknown bytes are ignored.
func ParseBytes(b []byte) []Key {
	var keys []Key
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == 0x1b:
			if i+2 < len(b) && (b[i+1] == '[' || b[i+1] == 'O') {
				if k, ok := arrow(b[i+2]); ok {
					keys = append(keys, k)
					i += 2
					continue
				}
			}
			keys = append(keys, KeyEsc)
		case c == 0x03:
			keys = append(keys, KeyEsc)
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
			if k, ok := ParseKey(string(c)); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func arrow(c byte) (Key, bool) {
	switch c {
	case 'A':
		return KeyUp, true
	case 'B':
		return KeyDown, true
	case 'C':
		return KeyRight, true
	case 'D':
		return KeyLeft, true
	}
	return "", false
}
