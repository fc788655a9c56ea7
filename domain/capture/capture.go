package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/config"
	"github.com/open-teleop/airscan/pkg/frames"
	"github.com/open-teleop/airscan/pkg/geometry"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

// Options selects the sensors and the frame the cloud is expressed in.
type Options struct {
	Lidar       string
	Camera      string // empty disables camera polling
	WorldFrame  bool
	PoseSource  string // config.PoseSourceVehicle or config.PoseSourceLidar
	FlipZ       bool
	ImageWidth  int // zero keeps the native size
	ImageHeight int
}

// OptionsFromConfig maps the capture and simulator sections onto Options.
func OptionsFromConfig(sim config.SimulatorConfig, c config.CaptureConfig) Options {
	return Options{
		Lidar:       sim.Lidar,
		Camera:      sim.Camera,
		WorldFrame:  c.UseWorldFrame(),
		PoseSource:  c.PoseSource,
		FlipZ:       c.FlipZAxis(),
		ImageWidth:  c.ImageWidth,
		ImageHeight: c.ImageHeight,
	}
}

// Frame is one loop iteration's sensor snapshot.
type Frame struct {
	Index     int
	Timestamp time.Time
	Session   string

	// Cloud is nil when the LiDAR returned fewer than one point.
	Cloud *pointcloud.Cloud
	// Pose is the transform applied to Cloud (identity in sensor frame).
	Pose geometry.Pose
	// Image is nil when the camera had nothing to show.
	Image *image.NRGBA
	State *airsim.MultirotorState
}

// TimestampMillis is the frame time in unix milliseconds, as used in file names.
func (f *Frame) TimestampMillis() int64 {
	return f.Timestamp.UnixMilli()
}

// Sensor polls one vehicle's LiDAR and camera and numbers the frames.
type Sensor struct {
	drone   *airsim.Multirotor
	opts    Options
	logger  customlog.Logger
	session string
	next    int
	now     func() time.Time
}

// NewSensor returns a sensor starting at frame 0 with a fresh session id.
func NewSensor(drone *airsim.Multirotor, opts Options, logger customlog.Logger) *Sensor {
	return &Sensor{
		drone:   drone,
		opts:    opts,
		logger:  logger,
		session: uuid.NewString(),
		now:     time.Now,
	}
}

// Session identifies this capture run in the catalog and on the bus.
func (s *Sensor) Session() string { return s.session }

// Poll reads the LiDAR then the camera. state is the vehicle state already
// read this iteration; it is fetched when nil and the pose source needs it.
func (s *Sensor) Poll(ctx context.Context, state *airsim.MultirotorState) (*Frame, error) {
	lidar, err := s.drone.GetLidarData(ctx, s.opts.Lidar)
	if err != nil {
		return nil, fmt.Errorf("failed to read lidar %s: %w", s.opts.Lidar, err)
	}

	frame := &Frame{
		Index:     s.next,
		Timestamp: s.now(),
		Session:   s.session,
		Pose:      geometry.Pose{Orientation: geometry.Identity},
		State:     state,
	}
	s.next++

	cloud, err := pointcloud.FromFlat(lidar.PointCloud)
	switch {
	case errors.Is(err, pointcloud.ErrTooFewPoints):
		s.logger.Debugf("Frame %d: lidar returned %d values, no cloud", frame.Index, len(lidar.PointCloud))
	case err != nil:
		return nil, err
	default:
		if s.opts.WorldFrame {
			if s.opts.PoseSource == config.PoseSourceLidar {
				frame.Pose = PoseFromAirSim(lidar.Pose)
			} else {
				if frame.State == nil {
					if frame.State, err = s.drone.GetMultirotorState(ctx); err != nil {
						return nil, fmt.Errorf("failed to read vehicle state: %w", err)
					}
				}
				k := frame.State.KinematicsEstimated
				frame.Pose = PoseFromAirSim(airsim.Pose{Position: k.Position, Orientation: k.Orientation})
			}
			cloud = cloud.Transform(frame.Pose)
		}
		if s.opts.FlipZ {
			cloud.FlipZ()
		}
		frame.Cloud = cloud
	}

	if s.opts.Camera != "" {
		img, err := s.pollCamera(ctx)
		if err != nil {
			return nil, err
		}
		frame.Image = img
	}
	return frame, nil
}

func (s *Sensor) pollCamera(ctx context.Context) (*image.NRGBA, error) {
	responses, err := s.drone.SimGetImages(ctx, airsim.SceneRequest(s.opts.Camera))
	if err != nil {
		return nil, fmt.Errorf("failed to read camera %s: %w", s.opts.Camera, err)
	}
	if len(responses) == 0 {
		return nil, nil
	}
	img, err := frames.Decode(responses[0])
	if errors.Is(err, frames.ErrEmptyImage) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.opts.ImageWidth > 0 && s.opts.ImageHeight > 0 {
		img = frames.Resize(img, s.opts.ImageWidth, s.opts.ImageHeight)
	}
	return img, nil
}

// PoseFromAirSim converts a simulator pose. An unset (NaN or zero)
// orientation becomes the identity rotation.
func PoseFromAirSim(p airsim.Pose) geometry.Pose {
	q := geometry.Quaternion{W: p.Orientation.W, X: p.Orientation.X, Y: p.Orientation.Y, Z: p.Orientation.Z}
	return geometry.Pose{
		Position:    r3.Vector{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Orientation: q.Normalize(),
	}
}

// Recorder decides which frames are persisted.
type Recorder struct {
	every int
}

// NewRecorder keeps one frame in every. Zero or less keeps none, one keeps all.
func NewRecorder(every int) Recorder {
	return Recorder{every: every}
}

// ShouldSave reports whether frame index is kept. With saving on, frame 0
// always is.
func (r Recorder) ShouldSave(index int) bool {
	if r.every <= 0 {
		return false
	}
	return index%r.every == 0
}
