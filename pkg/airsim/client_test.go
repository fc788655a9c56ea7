package airsim_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/airsim/airsimtest"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func quietLogger() customlog.Logger {
	return customlog.Must("error", "")
}

func dial(t *testing.T, srv *airsimtest.Server) *airsim.Client {
	t.Helper()
	c, err := airsim.Dial(context.Background(), srv.Addr(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFlightCommandSequence(t *testing.T) {
	srv := airsimtest.New(t)
	ctx := context.Background()
	drone := dial(t, srv).Multirotor("Drone1")

	require.NoError(t, drone.EnableAPIControl(ctx, true))
	require.NoError(t, drone.ArmDisarm(ctx, true))
	require.NoError(t, drone.Takeoff(ctx))

	state, err := drone.GetMultirotorState(ctx)
	require.NoError(t, err)
	assert.Equal(t, airsim.Flying, state.LandedState)
	assert.InDelta(t, 3.0, state.Altitude(), 1e-9)

	require.NoError(t, drone.MoveToPosition(ctx, -17, -3, -5, 3))
	state, err = drone.GetMultirotorState(ctx)
	require.NoError(t, err)
	assert.Equal(t, airsim.Vector3r{X: -17, Y: -3, Z: -5}, state.KinematicsEstimated.Position)

	require.NoError(t, drone.Land(ctx))
	require.NoError(t, drone.ArmDisarm(ctx, false))
	require.NoError(t, drone.EnableAPIControl(ctx, false))

	assert.False(t, srv.Armed())
	assert.False(t, srv.APIControl())
	assert.Equal(t, []string{
		"enableApiControl", "armDisarm", "takeoff", "getMultirotorState",
		"moveToPosition", "getMultirotorState", "land", "armDisarm", "enableApiControl",
	}, srv.Methods())

	for _, call := range srv.CallsTo("armDisarm") {
		var vehicle string
		require.NoError(t, call.Arg(1, &vehicle))
		assert.Equal(t, "Drone1", vehicle)
	}
}

func TestMoveByVelocityArguments(t *testing.T) {
	srv := airsimtest.New(t)
	drone := dial(t, srv).Multirotor("Drone1")

	call := drone.MoveByVelocityAsync(15, 0, -5, 100*time.Millisecond, airsim.YawRate(30))
	select {
	case <-call.Done:
		require.NoError(t, call.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("async command never completed")
	}

	calls := srv.CallsTo("moveByVelocity")
	require.Len(t, calls, 1)
	var vx, vz, duration float64
	require.NoError(t, calls[0].Arg(0, &vx))
	require.NoError(t, calls[0].Arg(2, &vz))
	require.NoError(t, calls[0].Arg(3, &duration))
	assert.Equal(t, 15.0, vx)
	assert.Equal(t, -5.0, vz)
	assert.InDelta(t, 0.1, duration, 1e-9)

	var drivetrain int
	require.NoError(t, calls[0].Arg(4, &drivetrain))
	assert.Equal(t, int(airsim.MaxDegreeOfFreedom), drivetrain)

	var yaw map[string]interface{}
	require.NoError(t, calls[0].Arg(5, &yaw))
	assert.Equal(t, true, yaw["is_rate"])
	assert.EqualValues(t, 30, yaw["yaw_or_rate"])

	var vehicle string
	require.NoError(t, calls[0].Arg(6, &vehicle))
	assert.Equal(t, "Drone1", vehicle)
}

func TestSensorQueries(t *testing.T) {
	srv := airsimtest.New(t)
	ctx := context.Background()
	drone := dial(t, srv).Multirotor("Drone1")

	srv.SetLidar(airsim.LidarData{
		PointCloud: []float64{1, 2, 3, 4, 5, 6},
		TimeStamp:  42,
		Pose:       airsim.Pose{Position: airsim.Vector3r{X: 1}, Orientation: airsim.IdentityQuaternion},
	})
	srv.SetImage(airsim.ImageResponse{Width: 2, Height: 1, ImageDataUint8: []byte{1, 2, 3, 4, 5, 6}})

	lidar, err := drone.GetLidarData(ctx, "Lidar1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, lidar.PointCloud)
	assert.Equal(t, uint64(42), lidar.TimeStamp)
	assert.Equal(t, 1.0, lidar.Pose.Position.X)

	images, err := drone.SimGetImages(ctx, airsim.SceneRequest("BottomCamera"))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 2, images[0].Width)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, images[0].ImageDataUint8)

	var requests []airsim.ImageRequest
	require.NoError(t, srv.CallsTo("simGetImages")[0].Arg(0, &requests))
	assert.Equal(t, []airsim.ImageRequest{{CameraName: "BottomCamera", ImageType: airsim.ImageScene}}, requests)
}

func TestRPCErrorIsReported(t *testing.T) {
	srv := airsimtest.New(t)
	srv.Fail("getLidarData", "lidar Lidar9 not found")
	drone := dial(t, srv).Multirotor("Drone1")

	_, err := drone.GetLidarData(context.Background(), "Lidar9")
	var rpcErr *airsim.RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, "getLidarData", rpcErr.Method)
	assert.Contains(t, rpcErr.Message, "Lidar9")
}

func TestCallHonoursContext(t *testing.T) {
	srv := airsimtest.New(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv.Handle("moveToZ", func([]msgpack.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})
	drone := dial(t, srv).Multirotor("Drone1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := drone.MoveToZ(ctx, -5, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseFailsPendingCalls(t *testing.T) {
	srv := airsimtest.New(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv.Handle("land", func([]msgpack.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})

	c, err := airsim.Dial(context.Background(), srv.Addr(), quietLogger())
	require.NoError(t, err)

	call := c.Go("land", 60.0, "Drone1")
	require.NoError(t, c.Close())

	<-call.Done
	assert.ErrorIs(t, call.Error, airsim.ErrShutdown)

	after := c.Go("ping")
	<-after.Done
	assert.ErrorIs(t, after.Error, airsim.ErrClosed)
	assert.ErrorIs(t, c.Close(), airsim.ErrClosed)
}

func TestConnectGivesUpAfterRetries(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	opts := airsim.ConnectOptions{Retries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	_, err = airsim.Connect(context.Background(), addr, opts, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestConnectRetriesUntilPingSucceeds(t *testing.T) {
	srv := airsimtest.New(t)
	var pings atomic.Int32
	srv.Handle("ping", func([]msgpack.RawMessage) (interface{}, error) {
		return pings.Add(1) >= 2, nil
	})

	opts := airsim.ConnectOptions{Retries: 5, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	c, err := airsim.Connect(context.Background(), srv.Addr(), opts, quietLogger())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int32(2), pings.Load())
}
