package teleop

import (
	"github.com/open-teleop/airscan/domain/telemetry"
	"github.com/open-teleop/airscan/pkg/config"
	"github.com/open-teleop/airscan/pkg/keyboard"
)

// KeyReader answers whether a key is currently held.
type KeyReader interface {
	IsPressed(k keyboard.Key) bool
}

// KeyMap turns held keys into a velocity command.
type KeyMap struct {
	Speed         float64 // m/s, w/s and a/d
	VerticalSpeed float64 // m/s, up/down
	YawRate       float64 // deg/s, left/right
}

// KeyMapFromConfig reads the command magnitudes from the flight section.
func KeyMapFromConfig(f config.FlightConfig) KeyMap {
	return KeyMap{Speed: f.Speed, VerticalSpeed: f.VerticalSpeed, YawRate: f.YawRate}
}

// Command evaluates the keys in a fixed order, so when both keys of an axis
// are held the later one wins: s over w, d over a, down over up, right over left.
// Up is negative z because the simulator frame points down.
func (m KeyMap) Command(keys KeyReader) telemetry.Command {
	var cmd telemetry.Command
	if keys.IsPressed(keyboard.KeyW) {
		cmd.Vx = m.Speed
	}
	if keys.IsPressed(keyboard.KeyS) {
		cmd.Vx = -m.Speed
	}
	if keys.IsPressed(keyboard.KeyA) {
		cmd.Vy = -m.Speed
	}
	if keys.IsPressed(keyboard.KeyD) {
		cmd.Vy = m.Speed
	}
	if keys.IsPressed(keyboard.KeyUp) {
		cmd.Vz = -m.VerticalSpeed
	}
	if keys.IsPressed(keyboard.KeyDown) {
		cmd.Vz = m.VerticalSpeed
	}
	if keys.IsPressed(keyboard.KeyLeft) {
		cmd.YawRate = -m.YawRate
	}
	if keys.IsPressed(keyboard.KeyRight) {
		cmd.YawRate = m.YawRate
	}
	return cmd
}
