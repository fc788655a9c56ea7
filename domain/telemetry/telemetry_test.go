package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	samples []interface{}
	err     error
}

func (p *recordingPublisher) PublishTelemetry(sample interface{}) error {
	p.samples = append(p.samples, sample)
	return p.err
}

func flyingState() *airsim.MultirotorState {
	var st airsim.MultirotorState
	st.KinematicsEstimated.Position = airsim.Vector3r{X: 1, Y: 2, Z: -4.25}
	st.KinematicsEstimated.LinearVelocity = airsim.Vector3r{Z: -1.5}
	st.KinematicsEstimated.Orientation = airsim.IdentityQuaternion
	st.LandedState = airsim.Flying
	return &st
}

func TestSampleLogLine(t *testing.T) {
	s := SampleFromState(20, flyingState(), Command{Vx: 15, Vz: -5, YawRate: -30})
	assert.Equal(t,
		"Frame 20 | Altitude: 4.25 m | Velocity: -1.50 m/s | vx: 15, vy: 0, vz: -5, yaw_rate: -30",
		s.String())
	assert.Equal(t, "flying", s.Landed)
	assert.InDelta(t, 0, s.Yaw, 1e-9)
}

func TestUpdateStampsAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(pub)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, ok := svc.Latest()
	assert.False(t, ok)
	_, err := svc.Snapshot()
	assert.Error(t, err)

	require.NoError(t, svc.Update(Sample{Frame: 3, Altitude: 5}))
	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, 3, latest.Frame)
	assert.Equal(t, fixed, latest.Timestamp)
	require.Len(t, pub.samples, 1)

	pub.err = errors.New("bus down")
	assert.Error(t, svc.Update(Sample{Frame: 4}))
	latest, _ = svc.Latest()
	assert.Equal(t, 4, latest.Frame)
}

func TestTelemetryHandler(t *testing.T) {
	svc := NewService(nil)
	app := fiber.New()
	app.Get("/api/telemetry", svc.GetTelemetryHandler)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/telemetry", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	require.NoError(t, svc.Update(SampleFromState(7, flyingState(), Command{Vx: 15})))
	resp, err = app.Test(httptest.NewRequest("GET", "/api/telemetry", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload struct {
		Status    string `json:"status"`
		Telemetry Sample `json:"telemetry"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "success", payload.Status)
	assert.Equal(t, 7, payload.Telemetry.Frame)
	assert.Equal(t, 15.0, payload.Telemetry.Command.Vx)
}
