package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/geometry"
)

// Command is the velocity command issued in the same iteration as a sample.
type Command struct {
	Vx      float64 `json:"vx"`
	Vy      float64 `json:"vy"`
	Vz      float64 `json:"vz"`
	YawRate float64 `json:"yaw_rate"`
}

// Sample is one iteration's view of the vehicle.
type Sample struct {
	Frame            int             `json:"frame"`
	Timestamp        time.Time       `json:"timestamp"`
	Altitude         float64         `json:"altitude"`
	VerticalVelocity float64         `json:"vertical_velocity"`
	Position         airsim.Vector3r `json:"position"`
	Yaw              float64         `json:"yaw"`
	Landed           string          `json:"landed_state"`
	Command          Command         `json:"command"`
}

// SampleFromState builds a sample from a vehicle state.
func SampleFromState(frame int, state *airsim.MultirotorState, cmd Command) Sample {
	k := state.KinematicsEstimated
	q := geometry.Quaternion{W: k.Orientation.W, X: k.Orientation.X, Y: k.Orientation.Y, Z: k.Orientation.Z}
	return Sample{
		Frame:            frame,
		Altitude:         state.Altitude(),
		VerticalVelocity: k.LinearVelocity.Z,
		Position:         k.Position,
		Yaw:              q.YawDeg(),
		Landed:           state.LandedState.String(),
		Command:          cmd,
	}
}

// String formats the sample as the per-frame flight log line.
func (s Sample) String() string {
	return fmt.Sprintf("Frame %d | Altitude: %.2f m | Velocity: %.2f m/s | vx: %g, vy: %g, vz: %g, yaw_rate: %g",
		s.Frame, s.Altitude, s.VerticalVelocity, s.Command.Vx, s.Command.Vy, s.Command.Vz, s.Command.YawRate)
}

// Publisher receives every sample, e.g. the message bus.
type Publisher interface {
	PublishTelemetry(sample interface{}) error
}

// Service holds the latest telemetry sample
type Service struct {
	mu        sync.RWMutex
	latest    Sample
	has       bool
	publisher Publisher
	now       func() time.Time
}

// NewService creates a telemetry store. publisher may be nil.
func NewService(publisher Publisher) *Service {
	return &Service{publisher: publisher, now: time.Now}
}

// Update stores s as the latest sample and forwards it to the publisher.
func (s *Service) Update(sample Sample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	s.mu.Lock()
	s.latest = sample
	s.has = true
	s.mu.Unlock()

	if s.publisher != nil {
		return s.publisher.PublishTelemetry(sample)
	}
	return nil
}

// Latest returns the most recent sample and whether one exists.
func (s *Service) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

// Snapshot returns the latest sample for request/reply callers.
func (s *Service) Snapshot() (interface{}, error) {
	sample, ok := s.Latest()
	if !ok {
		return nil, fmt.Errorf("no telemetry yet")
	}
	return sample, nil
}

// GetTelemetryHandler handles API requests for the latest sample
func (s *Service) GetTelemetryHandler(c *fiber.Ctx) error {
	sample, ok := s.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "no telemetry yet",
		})
	}
	return c.JSON(fiber.Map{
		"status":    "success",
		"telemetry": sample,
	})
}
