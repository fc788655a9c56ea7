package airsim

import "math"

// Vector3r is a vector in the simulator's NED frame (metres).
type Vector3r struct {
	X float64 `msgpack:"x_val" json:"x"`
	Y float64 `msgpack:"y_val" json:"y"`
	Z float64 `msgpack:"z_val" json:"z"`
}

// Quaternionr is an orientation quaternion.
type Quaternionr struct {
	W float64 `msgpack:"w_val" json:"w"`
	X float64 `msgpack:"x_val" json:"x"`
	Y float64 `msgpack:"y_val" json:"y"`
	Z float64 `msgpack:"z_val" json:"z"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternionr{W: 1}

// IsNaN reports whether the simulator sent an unset orientation.
func (q Quaternionr) IsNaN() bool {
	return math.IsNaN(q.W) || math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsNaN(q.Z)
}

// Pose is a position plus orientation.
type Pose struct {
	Position    Vector3r    `msgpack:"position" json:"position"`
	Orientation Quaternionr `msgpack:"orientation" json:"orientation"`
}

// KinematicsState is the estimated rigid-body state of a vehicle.
type KinematicsState struct {
	Position            Vector3r    `msgpack:"position" json:"position"`
	Orientation         Quaternionr `msgpack:"orientation" json:"orientation"`
	LinearVelocity      Vector3r    `msgpack:"linear_velocity" json:"linear_velocity"`
	AngularVelocity     Vector3r    `msgpack:"angular_velocity" json:"angular_velocity"`
	LinearAcceleration  Vector3r    `msgpack:"linear_acceleration" json:"linear_acceleration"`
	AngularAcceleration Vector3r    `msgpack:"angular_acceleration" json:"angular_acceleration"`
}

// GeoPoint is a GPS fix.
type GeoPoint struct {
	Latitude  float64 `msgpack:"latitude" json:"latitude"`
	Longitude float64 `msgpack:"longitude" json:"longitude"`
	Altitude  float64 `msgpack:"altitude" json:"altitude"`
}

// LandedState reports whether the vehicle is on the ground.
type LandedState int

const (
	Landed LandedState = 0
	Flying LandedState = 1
)

func (s LandedState) String() string {
	if s == Flying {
		return "flying"
	}
	return "landed"
}

// MultirotorState is the result of getMultirotorState.
type MultirotorState struct {
	Collision           CollisionInfo   `msgpack:"collision" json:"collision"`
	KinematicsEstimated KinematicsState `msgpack:"kinematics_estimated" json:"kinematics_estimated"`
	GPSLocation         GeoPoint        `msgpack:"gps_location" json:"gps_location"`
	Timestamp           uint64          `msgpack:"timestamp" json:"timestamp"`
	LandedState         LandedState     `msgpack:"landed_state" json:"landed_state"`
	Ready               bool            `msgpack:"ready" json:"ready"`
	ReadyMessage        string          `msgpack:"ready_message" json:"ready_message"`
	CanArm              bool            `msgpack:"can_arm" json:"can_arm"`
}

// Altitude is the height above the origin; NED z grows downward.
func (s MultirotorState) Altitude() float64 {
	return -s.KinematicsEstimated.Position.Z
}

// CollisionInfo describes the most recent collision, if any.
type CollisionInfo struct {
	HasCollided bool     `msgpack:"has_collided" json:"has_collided"`
	Normal      Vector3r `msgpack:"normal" json:"normal"`
	ImpactPoint Vector3r `msgpack:"impact_point" json:"impact_point"`
	Position    Vector3r `msgpack:"position" json:"position"`
	ObjectName  string   `msgpack:"object_name" json:"object_name"`
	ObjectID    int      `msgpack:"object_id" json:"object_id"`
}

// LidarData is one LiDAR poll. PointCloud holds flattened x,y,z triples in
// the sensor frame; Pose is the sensor pose in the world frame.
type LidarData struct {
	PointCloud   []float64 `msgpack:"point_cloud"`
	TimeStamp    uint64    `msgpack:"time_stamp"`
	Pose         Pose      `msgpack:"pose"`
	Segmentation []int     `msgpack:"segmentation"`
}

// DrivetrainType selects how the vehicle yaws while moving.
type DrivetrainType int

const (
	MaxDegreeOfFreedom DrivetrainType = 0
	ForwardOnly        DrivetrainType = 1
)

// YawMode is either an absolute yaw angle or a yaw rate, in degrees.
type YawMode struct {
	IsRate    bool    `msgpack:"is_rate"`
	YawOrRate float64 `msgpack:"yaw_or_rate"`
}

// YawRate returns a rate-mode YawMode.
func YawRate(degPerSec float64) YawMode {
	return YawMode{IsRate: true, YawOrRate: degPerSec}
}

// ImageType selects the camera render pass.
type ImageType int

const (
	ImageScene               ImageType = 0
	ImageDepthPlanar         ImageType = 1
	ImageDepthPerspective    ImageType = 2
	ImageDepthVis            ImageType = 3
	ImageDisparityNormalized ImageType = 4
	ImageSegmentation        ImageType = 5
	ImageSurfaceNormals      ImageType = 6
	ImageInfrared            ImageType = 7
)

// ImageRequest asks one camera for one image.
type ImageRequest struct {
	CameraName    string    `msgpack:"camera_name"`
	ImageType     ImageType `msgpack:"image_type"`
	PixelsAsFloat bool      `msgpack:"pixels_as_float"`
	Compress      bool      `msgpack:"compress"`
}

// SceneRequest is an uncompressed RGB scene capture from camera.
func SceneRequest(camera string) ImageRequest {
	return ImageRequest{CameraName: camera, ImageType: ImageScene}
}

// ImageResponse is the simulator's answer to one ImageRequest. Uncompressed
// scene images carry Height*Width*3 bytes in BGR order.
type ImageResponse struct {
	ImageDataUint8    []byte      `msgpack:"image_data_uint8"`
	ImageDataFloat    []float64   `msgpack:"image_data_float"`
	CameraPosition    Vector3r    `msgpack:"camera_position"`
	CameraOrientation Quaternionr `msgpack:"camera_orientation"`
	TimeStamp         uint64      `msgpack:"time_stamp"`
	Message           string      `msgpack:"message"`
	PixelsAsFloat     bool        `msgpack:"pixels_as_float"`
	Compress          bool        `msgpack:"compress"`
	Width             int         `msgpack:"width"`
	Height            int         `msgpack:"height"`
	ImageType         ImageType   `msgpack:"image_type"`
}
