package keyboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestState(hold time.Duration) (*State, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	s := NewState(hold)
	s.now = clock.now
	return s, clock
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Key
	}{
		{"letters", "wAsd", []Key{KeyW, KeyA, KeyS, KeyD}},
		{"arrows", "\x1b[A\x1b[B\x1b[C\x1b[D", []Key{KeyUp, KeyDown, KeyRight, KeyLeft}},
		{"application mode arrows", "\x1bOA", []Key{KeyUp}},
		{"lone escape", "\x1b", []Key{KeyEsc}},
		{"escape then letter", "\x1bw", []Key{KeyEsc, KeyW}},
		{"ctrl-c", "\x03", []Key{KeyEsc}},
		{"unknown ignored", "1z\x1b[Z", []Key{KeyEsc}},
		{"quit keys", "xq", []Key{KeyX, KeyQ}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBytes([]byte(tt.in)))
		})
	}
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey(" Up ")
	assert.True(t, ok)
	assert.Equal(t, KeyUp, k)

	k, ok = ParseKey("Escape")
	assert.True(t, ok)
	assert.Equal(t, KeyEsc, k)

	_, ok = ParseKey("f1")
	assert.False(t, ok)
}

func TestStateReleaseEvents(t *testing.T) {
	s, clock := newTestState(0)
	s.Apply(Event{Key: KeyW, Pressed: true})
	clock.advance(time.Hour)
	assert.True(t, s.IsPressed(KeyW))

	s.Apply(Event{Key: KeyW})
	assert.False(t, s.IsPressed(KeyW))
	assert.False(t, s.IsPressed(KeyS))
}

func TestStateHoldTimeout(t *testing.T) {
	s, clock := newTestState(500 * time.Millisecond)
	s.Apply(Event{Key: KeyD, Pressed: true})

	clock.advance(400 * time.Millisecond)
	assert.True(t, s.IsPressed(KeyD))

	// auto-repeat refreshes the press
	s.Apply(Event{Key: KeyD, Pressed: true})
	clock.advance(400 * time.Millisecond)
	assert.True(t, s.IsPressed(KeyD))

	clock.advance(200 * time.Millisecond)
	assert.False(t, s.IsPressed(KeyD))
}

func TestStateTriggered(t *testing.T) {
	s, _ := newTestState(0)
	s.Apply(Event{Key: KeyEsc, Pressed: true})
	s.Apply(Event{Key: KeyEsc})

	assert.False(t, s.IsPressed(KeyEsc))
	assert.True(t, s.Triggered(KeyEsc))
	assert.False(t, s.Triggered(KeyEsc))
}

func TestStateRunConsumesFeed(t *testing.T) {
	s := NewState(0)
	feed := NewFeed(4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), feed)
		close(done)
	}()

	require.True(t, feed.Press(KeyUp))
	require.NoError(t, feed.Close())
	<-done

	assert.True(t, s.IsPressed(KeyUp))
	assert.False(t, feed.Press(KeyUp))
	assert.NoError(t, feed.Close())
}

func TestStateRunStopsOnCancel(t *testing.T) {
	s := NewState(0)
	feed := NewFeed(1)
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, feed)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
