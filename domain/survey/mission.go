// Package survey flies a waypoint mission while showing the LiDAR and
// camera feeds, then plots the path actually flown.
package survey

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
	"github.com/open-teleop/airscan/pkg/trackplot"
	"go.uber.org/multierr"
)

// Window names
const (
	RasterWindow = "LiDAR Feed (2D)"
	CameraWindow = "Bottom Camera"
)

// keyEscape is the key code WaitKey returns for the escape key.
const keyEscape = 27

// FrameSink takes frames selected for persistence. Submit must not block.
type FrameSink interface {
	Submit(job *processing.ScanJob) bool
}

// Mission flies one plan.
type Mission struct {
	drone     *airsim.Multirotor
	sensor    *capture.Sensor
	plan      *config.Mission
	logger    customlog.Logger
	display   display.Display
	keys      *keyboard.State
	sink      FrameSink
	recorder  capture.Recorder
	telemetry *telemetry.Service
	track     *trackplot.Track
	trackPath string
}

// NewMission prepares plan for drone. Frames are shown on a headless display
// until SetDisplay is called.
func NewMission(drone *airsim.Multirotor, sensor *capture.Sensor, plan *config.Mission, logger customlog.Logger) *Mission {
	track := &trackplot.Track{Title: plan.Name}
	for _, wp := range plan.Waypoints {
		track.Targets = append(track.Targets, r3.Vector{X: wp.X(), Y: wp.Y(), Z: wp.Z()})
	}
	return &Mission{
		drone:    drone,
		sensor:   sensor,
		plan:     plan,
		logger:   logger,
		display:  display.NewHeadless(),
		recorder: capture.NewRecorder(1),
		track:    track,
	}
}

// SetDisplay sets the windows the feeds are drawn in
func (m *Mission) SetDisplay(d display.Display) { m.display = d }

// SetKeys lets an esc key press abort the mission.
func (m *Mission) SetKeys(keys *keyboard.State) { m.keys = keys }

// SetSink saves one poll in every saveEvery to sink.
func (m *Mission) SetSink(sink FrameSink, saveEvery int) {
	m.sink = sink
	m.recorder = capture.NewRecorder(saveEvery)
}

// SetTelemetry sets the store each poll's sample is written to
func (m *Mission) SetTelemetry(t *telemetry.Service) { m.telemetry = t }

// SetTrackPath makes Run write the flown track to path when it ends.
func (m *Mission) SetTrackPath(path string) { m.trackPath = path }

// Track is the path flown so far.
func (m *Mission) Track() *trackplot.Track { return m.track }

// Run takes off, climbs to the mission altitude and visits every waypoint,
// polling the sensors a fixed number of times at each. Escape in a window
// cuts the polling at the current waypoint short; esc on the keyboard or
// ctx ending aborts the mission. The vehicle is always landed.
func (m *Mission) Run(ctx context.Context) (err error) {
	if err := m.drone.EnableAPIControl(ctx, true); err != nil {
		return fmt.Errorf("failed to enable API control: %w", err)
	}
	defer func() {
		m.saveTrack()
		err = multierr.Append(err, m.shutdown(context.WithoutCancel(ctx)))
	}()

	if err := m.drone.ArmDisarm(ctx, true); err != nil {
		return fmt.Errorf("failed to arm: %w", err)
	}
	m.logger.Infof("Taking off...")
	if err := m.drone.Takeoff(ctx); err != nil {
		return fmt.Errorf("takeoff failed: %w", err)
	}
	if err := m.drone.MoveToZ(ctx, -m.plan.Altitude, m.plan.ClimbVelocity); err != nil {
		return m.interrupted(ctx, fmt.Errorf("climb to %.1f m failed: %w", m.plan.Altitude, err))
	}

	for i, wp := range m.plan.Waypoints {
		m.logger.Infof("Flying to (%g, %g, %g)... [%d/%d]", wp.X(), wp.Y(), wp.Z(), i+1, len(m.plan.Waypoints))
		if err := m.drone.MoveToPosition(ctx, wp.X(), wp.Y(), wp.Z(), m.plan.Velocity); err != nil {
			return m.interrupted(ctx, fmt.Errorf("waypoint %d: %w", i, err))
		}
		abort, err := m.pollAt(ctx)
		if err != nil {
			return m.interrupted(ctx, err)
		}
		if abort {
			m.logger.Infof("Mission aborted at waypoint %d", i)
			return nil
		}
	}
	m.logger.Infof("Mission %s complete", m.plan.Name)
	return nil
}

// interrupted turns an error caused by ctx ending into a clean stop.
func (m *Mission) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		m.logger.Infof("Mission interrupted")
		return nil
	}
	return err
}

// pollAt runs the sensor polls for the waypoint just reached.
func (m *Mission) pollAt(ctx context.Context) (bool, error) {
	period := time.Duration(m.plan.PollPeriodMs) * time.Millisecond
	for p := 0; p < m.plan.PollsPerWaypoint; p++ {
		state, err := m.drone.GetMultirotorState(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read vehicle state: %w", err)
		}
		if p == 0 {
			pos := state.KinematicsEstimated.Position
			m.track.Add(r3.Vector{X: pos.X, Y: pos.Y, Z: pos.Z})
		}

		frame, err := m.sensor.Poll(ctx, state)
		if err != nil {
			return false, err
		}
		if m.telemetry != nil {
			if err := m.telemetry.Update(telemetry.SampleFromState(frame.Index, state, telemetry.Command{})); err != nil {
				m.logger.Warnf("Failed to publish telemetry: %v", err)
			}
		}
		if m.sink != nil && m.recorder.ShouldSave(frame.Index) && frame.Cloud != nil {
			m.save(frame)
		}
		m.show(frame)

		if m.keys != nil && m.keys.Triggered(keyboard.KeyEsc) {
			return true, nil
		}
		if m.display.WaitKey(1)&0xFF == keyEscape {
			m.logger.Debugf("Escape pressed, leaving waypoint early")
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(period):
		}
	}
	return false, nil
}

func (m *Mission) save(frame *capture.Frame) {
	job := &processing.ScanJob{
		Session:   frame.Session,
		Frame:     frame.Index,
		Timestamp: frame.Timestamp,
		Cloud:     frame.Cloud,
		SaveScan:  true,
	}
	if frame.State != nil {
		p := frame.State.KinematicsEstimated.Position
		job.Position = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}
	if !m.sink.Submit(job) {
		m.logger.Warnf("Frame %d dropped, sink queue full", frame.Index)
	}
}

func (m *Mission) show(frame *capture.Frame) {
	if frame.Cloud != nil {
		raster := frame.Cloud.TopDownRaster(m.plan.RasterSize, m.plan.RasterScale)
		if err := m.display.Show(RasterWindow, raster); err != nil {
			m.logger.Warnf("Failed to show lidar raster: %v", err)
		}
	}
	if frame.Image != nil {
		if err := m.display.Show(CameraWindow, frame.Image); err != nil {
			m.logger.Warnf("Failed to show camera frame: %v", err)
		}
	}
}

func (m *Mission) saveTrack() {
	if m.trackPath == "" || len(m.track.Positions) == 0 {
		return
	}
	if err := m.track.Save(m.trackPath); err != nil {
		m.logger.Warnf("Failed to save track plot: %v", err)
		return
	}
	m.logger.Infof("Track written to %s", m.trackPath)
}

func (m *Mission) shutdown(ctx context.Context) error {
	m.logger.Infof("Landing...")
	var err error
	if e := m.drone.Land(ctx); e != nil {
		err = multierr.Append(err, fmt.Errorf("land failed: %w", e))
	}
	if e := m.drone.ArmDisarm(ctx, false); e != nil {
		err = multierr.Append(err, fmt.Errorf("disarm failed: %w", e))
	}
	if e := m.drone.EnableAPIControl(ctx, false); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to release API control: %w", e))
	}
	if e := m.display.Close(); e != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close display: %w", e))
	}
	return err
}
