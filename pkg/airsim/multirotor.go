package airsim

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultTakeoffTimeoutSec = 20
	defaultLandTimeoutSec    = 60
	// noTimeoutSec is what the simulator treats as "wait for arrival".
	noTimeoutSec = 3e38
)

// Ping checks that the RPC server answers.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	var ok bool
	err := c.query(ctx, "ping", &ok)
	return ok, err
}

// GetServerVersion returns the simulator RPC API version.
func (c *Client) GetServerVersion(ctx context.Context) (int, error) {
	var v int
	err := c.query(ctx, "getServerVersion", &v)
	return v, err
}

// ConfirmConnection pings the server and logs its API version.
func (c *Client) ConfirmConnection(ctx context.Context) error {
	ok, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("airsim: server did not acknowledge ping")
	}
	if v, err := c.GetServerVersion(ctx); err == nil {
		c.logger.Debugf("Simulator API version %d", v)
	}
	return nil
}

// Multirotor issues commands to one named multirotor vehicle.
type Multirotor struct {
	client *Client
	name   string
}

// Multirotor returns a handle on the named vehicle.
func (c *Client) Multirotor(name string) *Multirotor {
	return &Multirotor{client: c, name: name}
}

// Name returns the vehicle name.
func (m *Multirotor) Name() string { return m.name }

// Client returns the underlying RPC client.
func (m *Multirotor) Client() *Client { return m.client }

// EnableAPIControl grants or releases API control of the vehicle.
func (m *Multirotor) EnableAPIControl(ctx context.Context, enabled bool) error {
	return m.client.Call(ctx, "enableApiControl", nil, enabled, m.name)
}

// IsAPIControlEnabled reports whether the API currently controls the vehicle.
func (m *Multirotor) IsAPIControlEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := m.client.query(ctx, "isApiControlEnabled", &enabled, m.name)
	return enabled, err
}

// ArmDisarm arms (true) or disarms (false) the motors.
func (m *Multirotor) ArmDisarm(ctx context.Context, arm bool) error {
	var ok bool
	if err := m.client.Call(ctx, "armDisarm", &ok, arm, m.name); err != nil {
		return err
	}
	if !ok {
		verb := "disarm"
		if arm {
			verb = "arm"
		}
		return fmt.Errorf("airsim: vehicle %s refused to %s", m.name, verb)
	}
	return nil
}

// Takeoff blocks until the vehicle has lifted off.
func (m *Multirotor) Takeoff(ctx context.Context) error {
	return m.client.Call(ctx, "takeoff", nil, float64(defaultTakeoffTimeoutSec), m.name)
}

// Land blocks until the vehicle is on the ground.
func (m *Multirotor) Land(ctx context.Context) error {
	return m.client.Call(ctx, "land", nil, float64(defaultLandTimeoutSec), m.name)
}

// Hover holds the current position.
func (m *Multirotor) Hover(ctx context.Context) error {
	return m.client.Call(ctx, "hover", nil, m.name)
}

func (m *Multirotor) velocityArgs(vx, vy, vz float64, duration time.Duration, yaw YawMode) []interface{} {
	return []interface{}{vx, vy, vz, duration.Seconds(), MaxDegreeOfFreedom, yaw, m.name}
}

// MoveByVelocity commands a world-frame velocity for duration and waits for
// the command to finish.
func (m *Multirotor) MoveByVelocity(ctx context.Context, vx, vy, vz float64, duration time.Duration, yaw YawMode) error {
	return m.client.Call(ctx, "moveByVelocity", nil, m.velocityArgs(vx, vy, vz, duration, yaw)...)
}

// MoveByVelocityAsync sends the velocity command without waiting. A newer
// command supersedes the previous one on the simulator side.
func (m *Multirotor) MoveByVelocityAsync(vx, vy, vz float64, duration time.Duration, yaw YawMode) *Call {
	return m.client.Go("moveByVelocity", m.velocityArgs(vx, vy, vz, duration, yaw)...)
}

// MoveToPosition flies to (x, y, z) at velocity m/s and waits for arrival.
func (m *Multirotor) MoveToPosition(ctx context.Context, x, y, z, velocity float64) error {
	return m.client.Call(ctx, "moveToPosition", nil,
		x, y, z, velocity, noTimeoutSec, MaxDegreeOfFreedom, YawRate(0), -1.0, 1.0, m.name)
}

// MoveToZ climbs or descends to z at velocity m/s and waits for arrival.
func (m *Multirotor) MoveToZ(ctx context.Context, z, velocity float64) error {
	return m.client.Call(ctx, "moveToZ", nil,
		z, velocity, noTimeoutSec, YawRate(0), -1.0, 1.0, m.name)
}

// GetMultirotorState returns the estimated kinematics and flight status.
func (m *Multirotor) GetMultirotorState(ctx context.Context) (*MultirotorState, error) {
	var state MultirotorState
	if err := m.client.query(ctx, "getMultirotorState", &state, m.name); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetLidarData polls the named LiDAR on this vehicle.
func (m *Multirotor) GetLidarData(ctx context.Context, lidar string) (*LidarData, error) {
	var data LidarData
	if err := m.client.query(ctx, "getLidarData", &data, lidar, m.name); err != nil {
		return nil, err
	}
	return &data, nil
}

// SimGetImages captures one image per request from this vehicle's cameras.
func (m *Multirotor) SimGetImages(ctx context.Context, requests ...ImageRequest) ([]ImageResponse, error) {
	var responses []ImageResponse
	if err := m.client.query(ctx, "simGetImages", &responses, requests, m.name); err != nil {
		return nil, err
	}
	return responses, nil
}
