package teleop

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/domain/capture"
	"github.com/open-teleop/airscan/domain/telemetry"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/config"
	"github.com/open-teleop/airscan/pkg/display"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/processing"
	"go.uber.org/multierr"
)

// Window names
const (
	CameraWindow = "Bottom Camera"
	LidarWindow  = "LiDAR Feed"
)

// Options controls loop timing and what each iteration does with its frame.
type Options struct {
	CommandDuration time.Duration
	LoopPeriod      time.Duration
	SaveEvery       int
	SaveImages      bool
	ShowCamera      bool
	ShowLidar       bool
	RasterSize      int
	RasterScale     float64
}

// OptionsFromConfig maps the bootstrap config onto Options. The LiDAR raster
// uses the survey's raster geometry.
func OptionsFromConfig(cfg *config.BootstrapConfig, mission *config.Mission) Options {
	opts := Options{
		CommandDuration: time.Duration(cfg.Flight.CommandDurationMs) * time.Millisecond,
		LoopPeriod:      time.Duration(cfg.Flight.LoopPeriodMs) * time.Millisecond,
		SaveEvery:       cfg.Capture.SaveInterval(),
		SaveImages:      cfg.Capture.SaveImages,
		ShowCamera:      cfg.Capture.ShowCameraWindow(),
		ShowLidar:       cfg.Capture.ShowLidar,
		RasterSize:      500,
		RasterScale:     5,
	}
	if mission != nil {
		opts.RasterSize = mission.RasterSize
		opts.RasterScale = mission.RasterScale
	}
	return opts
}

// FrameSink takes frames selected for persistence. Submit must not block.
type FrameSink interface {
	Submit(job *processing.ScanJob) bool
}

// Session is one manual flight.
type Session struct {
	drone     *airsim.Multirotor
	keys      *keyboard.State
	keyMap    KeyMap
	sensor    *capture.Sensor
	recorder  capture.Recorder
	opts      Options
	logger    customlog.Logger
	display   display.Display
	sink      FrameSink
	telemetry *telemetry.Service
	onFrame   func(*capture.Frame)
	lastMove  *airsim.Call
}

// NewSession creates a flight session. Without further setup frames are
// neither shown nor saved.
func NewSession(drone *airsim.Multirotor, keys *keyboard.State, keyMap KeyMap, sensor *capture.Sensor, opts Options, logger customlog.Logger) *Session {
	return &Session{
		drone:    drone,
		keys:     keys,
		keyMap:   keyMap,
		sensor:   sensor,
		recorder: capture.NewRecorder(opts.SaveEvery),
		opts:     opts,
		logger:   logger,
		display:  display.NewHeadless(),
	}
}

// SetDisplay sets the windows camera and LiDAR frames are drawn in
func (s *Session) SetDisplay(d display.Display) {
	s.display = d
}

// SetSink sets where saved frames go
func (s *Session) SetSink(sink FrameSink) {
	s.sink = sink
}

// SetTelemetry sets the store each iteration's sample is written to
func (s *Session) SetTelemetry(t *telemetry.Service) {
	s.telemetry = t
}

// SetFrameListener registers fn to see every frame, e.g. for streaming.
func (s *Session) SetFrameListener(fn func(*capture.Frame)) {
	s.onFrame = fn
}

// Run takes off, flies until esc, 'x' in a window or ctx ends, then lands.
// Landing, disarming and releasing control happen even when ctx was
// cancelled or a step failed.
func (s *Session) Run(ctx context.Context) (err error) {
	s.logger.Infof("Controls: WASD=move, Up/Down=altitude, Left/Right=yaw, Esc=quit")

	if err := s.drone.EnableAPIControl(ctx, true); err != nil {
		return fmt.Errorf("failed to enable API control: %w", err)
	}
	defer func() {
		err = multierr.Append(err, s.shutdown(context.WithoutCancel(ctx)))
	}()

	if err := s.drone.ArmDisarm(ctx, true); err != nil {
		return fmt.Errorf("failed to arm: %w", err)
	}
	if err := s.drone.Takeoff(ctx); err != nil {
		return fmt.Errorf("takeoff failed: %w", err)
	}
	s.logger.Infof("Airborne, session %s", s.sensor.Session())

	for {
		quit, err := s.step(ctx)
		if ctx.Err() != nil {
			s.logger.Infof("Flight interrupted")
			return nil
		}
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		select {
		case <-ctx.Done():
			s.logger.Infof("Flight interrupted")
			return nil
		case <-time.After(s.opts.LoopPeriod):
		}
	}
}

// step runs one loop iteration and reports whether the pilot asked to quit.
func (s *Session) step(ctx context.Context) (bool, error) {
	cmd := s.keyMap.Command(s.keys)
	s.checkLastMove()
	s.lastMove = s.drone.MoveByVelocityAsync(cmd.Vx, cmd.Vy, cmd.Vz, s.opts.CommandDuration, airsim.YawRate(cmd.YawRate))

	state, err := s.drone.GetMultirotorState(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read vehicle state: %w", err)
	}
	frame, err := s.sensor.Poll(ctx, state)
	if err != nil {
		return false, err
	}

	sample := telemetry.SampleFromState(frame.Index, state, cmd)
	s.logger.Infof("%s", sample)
	if s.telemetry != nil {
		if err := s.telemetry.Update(sample); err != nil {
			s.logger.Warnf("Failed to publish telemetry: %v", err)
		}
	}

	if s.sink != nil && s.recorder.ShouldSave(frame.Index) {
		s.submit(frame)
	}
	if s.onFrame != nil {
		s.onFrame(frame)
	}
	s.show(frame)

	if s.keys.Triggered(keyboard.KeyEsc) {
		s.logger.Infof("ESC pressed. Exiting.")
		return true, nil
	}
	if s.display.WaitKey(1) == 'x' {
		s.logger.Infof("'x' pressed in window. Exiting.")
		return true, nil
	}
	return false, nil
}

// checkLastMove reports a failed velocity command without waiting for one
// still in flight.
func (s *Session) checkLastMove() {
	if s.lastMove == nil {
		return
	}
	select {
	case call := <-s.lastMove.Done:
		if call.Error != nil {
			s.logger.Warnf("Velocity command failed: %v", call.Error)
		}
	default:
	}
}

func (s *Session) submit(frame *capture.Frame) {
	if frame.Cloud == nil && frame.Image == nil {
		return
	}
	job := &processing.ScanJob{
		Session:   frame.Session,
		Frame:     frame.Index,
		Timestamp: frame.Timestamp,
		Cloud:     frame.Cloud,
		SaveScan:  true,
		SaveImage: s.opts.SaveImages,
	}
	if frame.Image != nil {
		job.Image = frame.Image
	}
	if frame.State != nil {
		p := frame.State.KinematicsEstimated.Position
		job.Position = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}
	if !s.sink.Submit(job) {
		s.logger.Warnf("Frame %d dropped, sink queue full", frame.Index)
	}
}

func (s *Session) show(frame *capture.Frame) {
	if s.opts.ShowCamera && frame.Image != nil {
		if err := s.display.Show(CameraWindow, frame.Image); err != nil {
			s.logger.Warnf("Failed to show camera frame: %v", err)
		}
	}
	if s.opts.ShowLidar && frame.Cloud != nil {
		raster := frame.Cloud.TopDownRaster(s.opts.RasterSize, s.opts.RasterScale)
		if err := s.display.Show(LidarWindow, raster); err != nil {
			s.logger.Warnf("Failed to show lidar raster: %v", err)
		}
	}
}

func (s *Session) shutdown(ctx context.Context) error {
	s.logger.Infof("Landing and closing connection...")
	var err error
	if e := s.drone.Land(ctx); e != nil {
		err = multierr.Append(err, fmt.Errorf("land failed: %w", e))
	}
	if e := s.drone.ArmDisarm(ctx, false); e != nil {
		err = multierr.Append(err, fmt.Errorf("disarm failed: %w", e))
	}
	if e := s.drone.EnableAPIControl(ctx, false); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to release API control: %w", e))
	}
	if e := s.display.Close(); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close display: %w", e))
	}
	return err
}
