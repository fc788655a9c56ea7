package api

import (
	"fmt"

	"github.com/open-teleop/airscan/pkg/keyboard"
)

// ControlMessage is one key transition sent over /ws/control.
type ControlMessage struct {
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

// Event validates the key name and converts the message to a key event.
func (m ControlMessage) Event() (keyboard.Event, error) {
	k, ok := keyboard.ParseKey(m.Key)
	if !ok {
		return keyboard.Event{}, fmt.Errorf("unknown key %q", m.Key)
	}
	return keyboard.Event{Key: k, Pressed: m.Pressed}, nil
}
