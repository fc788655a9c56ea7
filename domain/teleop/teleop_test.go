package teleop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/airscan/domain/capture"
	"github.com/open-teleop/airscan/domain/telemetry"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/airsim/airsimtest"
	"github.com/open-teleop/airscan/pkg/config"
	"github.com/open-teleop/airscan/pkg/display"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heldKeys map[keyboard.Key]bool

func (h heldKeys) IsPressed(k keyboard.Key) bool { return h[k] }

func TestKeyMapLaterKeysWin(t *testing.T) {
	m := KeyMap{Speed: 15, VerticalSpeed: 5, YawRate: 30}

	assert.Equal(t, telemetry.Command{}, m.Command(heldKeys{}))
	assert.Equal(t, telemetry.Command{Vx: 15, Vy: -15, Vz: -5, YawRate: -30},
		m.Command(heldKeys{keyboard.KeyW: true, keyboard.KeyA: true, keyboard.KeyUp: true, keyboard.KeyLeft: true}))
	assert.Equal(t, telemetry.Command{Vx: -15, Vy: 15, Vz: 5, YawRate: 30},
		m.Command(heldKeys{
			keyboard.KeyW: true, keyboard.KeyS: true,
			keyboard.KeyA: true, keyboard.KeyD: true,
			keyboard.KeyUp: true, keyboard.KeyDown: true,
			keyboard.KeyLeft: true, keyboard.KeyRight: true,
		}))
}

type recordingSink struct {
	mu   sync.Mutex
	jobs []*processing.ScanJob
	full bool
}

func (s *recordingSink) Submit(job *processing.ScanJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.jobs = append(s.jobs, job)
	return true
}

func (s *recordingSink) frames() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, j := range s.jobs {
		out = append(out, j.Frame)
	}
	return out
}

type fixture struct {
	srv     *airsimtest.Server
	keys    *keyboard.State
	display *display.Headless
	sink    *recordingSink
	session *Session
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	srv := airsimtest.New(t)
	srv.SetLidar(airsim.LidarData{PointCloud: []float64{1, 2, 3, 4, 5, 6}})
	srv.SetImage(airsim.ImageResponse{
		Width:          2,
		Height:         1,
		ImageDataUint8: []byte{0, 0, 255, 255, 0, 0},
	})

	logger := customlog.Must("error", "")
	client, err := airsim.Dial(context.Background(), srv.Addr(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	drone := client.Multirotor("Drone1")

	sensor := capture.NewSensor(drone, capture.Options{
		Lidar:      "Lidar1",
		Camera:     "BottomCamera",
		WorldFrame: true,
		PoseSource: config.PoseSourceVehicle,
	}, logger)

	f := &fixture{
		srv:     srv,
		keys:    keyboard.NewState(0),
		display: display.NewHeadless(),
		sink:    &recordingSink{},
	}
	f.session = NewSession(drone, f.keys, KeyMap{Speed: 15, VerticalSpeed: 5, YawRate: 30}, sensor, opts, logger)
	f.session.SetDisplay(f.display)
	f.session.SetSink(f.sink)
	return f
}

func defaultOptions() Options {
	return Options{
		CommandDuration: 100 * time.Millisecond,
		LoopPeriod:      time.Millisecond,
		SaveEvery:       2,
		ShowCamera:      true,
		ShowLidar:       true,
		RasterSize:      50,
		RasterScale:     5,
	}
}

func assertCleanedUp(t *testing.T, f *fixture) {
	t.Helper()
	assert.NotEmpty(t, f.srv.CallsTo("land"))
	assert.False(t, f.srv.Armed())
	assert.False(t, f.srv.APIControl())
	assert.True(t, f.display.Closed())
}

func TestRunQuitsOnWindowKey(t *testing.T) {
	f := newFixture(t, defaultOptions())
	tel := telemetry.NewService(nil)
	f.session.SetTelemetry(tel)
	var seen []int
	f.session.SetFrameListener(func(fr *capture.Frame) { seen = append(seen, fr.Index) })

	f.keys.Apply(keyboard.Event{Key: keyboard.KeyW, Pressed: true})
	f.display.QueueKey(display.NoKey)
	f.display.QueueKey('a')
	f.display.QueueKey('x')

	require.NoError(t, f.session.Run(context.Background()))

	moves := f.srv.CallsTo("moveByVelocity")
	require.Len(t, moves, 3)
	var vx, duration float64
	require.NoError(t, moves[0].Arg(0, &vx))
	require.NoError(t, moves[0].Arg(3, &duration))
	assert.Equal(t, 15.0, vx)
	assert.InDelta(t, 0.1, duration, 1e-12)

	assert.Equal(t, []int{0, 2}, f.sink.frames())
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, 3, f.display.Shown(CameraWindow))
	assert.Equal(t, 3, f.display.Shown(LidarWindow))

	latest, ok := tel.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Frame)
	assert.Equal(t, 15.0, latest.Command.Vx)

	assert.NotEmpty(t, f.srv.CallsTo("takeoff"))
	assertCleanedUp(t, f)
}

func TestRunQuitsOnEsc(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.keys.Apply(keyboard.Event{Key: keyboard.KeyEsc, Pressed: true})
	f.keys.Apply(keyboard.Event{Key: keyboard.KeyEsc})

	require.NoError(t, f.session.Run(context.Background()))
	assert.Len(t, f.srv.CallsTo("moveByVelocity"), 1)
	assertCleanedUp(t, f)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	opts := defaultOptions()
	opts.LoopPeriod = 5 * time.Millisecond
	f := newFixture(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, f.session.Run(ctx))
	assert.NotEmpty(t, f.srv.CallsTo("moveByVelocity"))
	assertCleanedUp(t, f)
}

func TestRunCleansUpAfterTakeoffFailure(t *testing.T) {
	f := newFixture(t, defaultOptions())
	f.srv.Fail("takeoff", "motors disabled")

	err := f.session.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "motors disabled")
	assert.Empty(t, f.srv.CallsTo("moveByVelocity"))
	assertCleanedUp(t, f)
}

func TestDroppedFramesDoNotStopTheFlight(t *testing.T) {
	opts := defaultOptions()
	opts.SaveEvery = 1
	f := newFixture(t, opts)
	f.sink.full = true
	f.display.QueueKey('x')

	require.NoError(t, f.session.Run(context.Background()))
	assert.Empty(t, f.sink.frames())
	assertCleanedUp(t, f)
}
