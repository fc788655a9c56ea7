package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the file LoadBootstrapConfig reads from the config directory.
const BootstrapFileName = "airscan_config.yaml"

// Scan file formats understood by the capture pipeline.
const (
	FormatXYZ = "xyz"
	FormatNPY = "npy"
	FormatLAS = "las"
)

// Pose sources used to move LiDAR points into the world frame.
const (
	PoseSourceVehicle = "vehicle"
	PoseSourceLidar   = "lidar"
)

// BootstrapConfig holds the configuration loaded from airscan_config.yaml
type BootstrapConfig struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Flight     FlightConfig     `yaml:"flight"`
	Capture    CaptureConfig    `yaml:"capture"`
	Server     ServerConfig     `yaml:"server"`
	ZeroMQ     ZeroMQConfig     `yaml:"zeromq"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Processing ProcessingConfig `yaml:"processing"`
	Mission    MissionRef       `yaml:"mission"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// SimulatorConfig describes where the simulator RPC server lives and which
// vehicle and sensors to drive.
type SimulatorConfig struct {
	Address                  string `yaml:"address"`
	Vehicle                  string `yaml:"vehicle"`
	Lidar                    string `yaml:"lidar"`
	Camera                   string `yaml:"camera"`
	ConnectRetries           int    `yaml:"connect_retries"`
	ConnectInitialIntervalMs int    `yaml:"connect_initial_interval_ms"`
	ConnectMaxIntervalMs     int    `yaml:"connect_max_interval_ms"`
	RPCTimeoutMs             int    `yaml:"rpc_timeout_ms"`
}

// FlightConfig holds command magnitudes and loop timing.
type FlightConfig struct {
	Speed             float64 `yaml:"speed"`
	VerticalSpeed     float64 `yaml:"vertical_speed"`
	YawRate           float64 `yaml:"yaw_rate"`
	CommandDurationMs int     `yaml:"command_duration_ms"`
	LoopPeriodMs      int     `yaml:"loop_period_ms"`
}

// CaptureConfig controls what is done with each sensor poll.
type CaptureConfig struct {
	ScanDir     string `yaml:"scan_dir"`
	ImageDir    string `yaml:"image_dir"`
	Format      string `yaml:"format"`
	SaveEvery   *int   `yaml:"save_every,omitempty"`
	WorldFrame  *bool  `yaml:"world_frame,omitempty"`
	FlipZ       *bool  `yaml:"flip_z,omitempty"`
	PoseSource  string `yaml:"pose_source"`
	SaveImages  bool   `yaml:"save_images"`
	ImageWidth  int    `yaml:"image_width"`
	ImageHeight int    `yaml:"image_height"`
	ShowLidar   bool   `yaml:"show_lidar"`
	ShowCamera  *bool  `yaml:"show_camera,omitempty"`
}

// ServerConfig holds HTTP server settings. A zero port disables the server.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ZeroMQConfig holds the bus endpoints. An empty publish address disables
// the bus; an empty control address disables the request socket.
type ZeroMQConfig struct {
	PublishAddress string `yaml:"publish_address"`
	ControlAddress string `yaml:"control_address"`
}

// CatalogConfig points at the sqlite scan catalog. Empty disables it.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ProcessingConfig sizes the frame sink pool.
type ProcessingConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MissionRef names the mission file, relative to the config directory.
type MissionRef struct {
	File string `yaml:"file"`
}

// LoadBootstrapConfig loads the bootstrap configuration from airscan_config.yaml.
// A .env file in the working directory, if present, is loaded first so its
// values take part in the environment overrides.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	cfg, err := ParseBootstrapConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if cfg.Mission.File != "" && !filepath.IsAbs(cfg.Mission.File) {
		cfg.Mission.File = filepath.Join(configDir, cfg.Mission.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseBootstrapConfig decodes YAML and fills in defaults. It does not validate.
func ParseBootstrapConfig(data []byte) (*BootstrapConfig, error) {
	var cfg BootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *BootstrapConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv("AIRSCAN_SIM_ADDRESS"); v != "" {
		c.Simulator.Address = v
	}
	if v := getenv("AIRSCAN_VEHICLE"); v != "" {
		c.Simulator.Vehicle = v
	}
	if v := getenv("AIRSCAN_SCAN_DIR"); v != "" {
		c.Capture.ScanDir = v
	}
	if v := getenv("AIRSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("AIRSCAN_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AIRSCAN_HTTP_PORT %q: %w", v, err)
		}
		c.Server.HTTPPort = port
	}
	return nil
}

// Validate checks required fields and enumerations.
func (c *BootstrapConfig) Validate() error {
	if c.Simulator.Address == "" {
		return fmt.Errorf("missing required field in bootstrap config: simulator.address")
	}
	if c.Simulator.Vehicle == "" {
		return fmt.Errorf("missing required field in bootstrap config: simulator.vehicle")
	}
	if c.Capture.ScanDir == "" {
		return fmt.Errorf("missing required field in bootstrap config: capture.scan_dir")
	}
	switch c.Capture.Format {
	case FormatXYZ, FormatNPY, FormatLAS:
	default:
		return fmt.Errorf("invalid capture.format %q (want xyz, npy or las)", c.Capture.Format)
	}
	switch c.Capture.PoseSource {
	case PoseSourceVehicle, PoseSourceLidar:
	default:
		return fmt.Errorf("invalid capture.pose_source %q (want vehicle or lidar)", c.Capture.PoseSource)
	}
	if c.Capture.SaveEvery != nil && *c.Capture.SaveEvery < 0 {
		return fmt.Errorf("capture.save_every must not be negative")
	}
	return nil
}

// UseWorldFrame reports whether scans are transformed into the world frame.
func (c CaptureConfig) UseWorldFrame() bool {
	return c.WorldFrame == nil || *c.WorldFrame
}

// DefaultSaveEvery is the save interval used when save_every is not set.
const DefaultSaveEvery = 20

// SaveInterval is the save_every setting: 0 saves nothing, 1 every frame,
// N every Nth frame. Unset means DefaultSaveEvery.
func (c CaptureConfig) SaveInterval() int {
	if c.SaveEvery == nil {
		return DefaultSaveEvery
	}
	return *c.SaveEvery
}

// FlipZAxis reports whether world Z is negated after the transform. Unset,
// it follows the pose source: vehicle-pose scans are flipped into height,
// LiDAR-pose scans keep the simulator's NED z.
func (c CaptureConfig) FlipZAxis() bool {
	if c.FlipZ != nil {
		return *c.FlipZ
	}
	return c.PoseSource == PoseSourceVehicle
}

// ShowCameraWindow reports whether camera frames are displayed.
func (c CaptureConfig) ShowCameraWindow() bool {
	return c.ShowCamera == nil || *c.ShowCamera
}

func (c *BootstrapConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Simulator.Address == "" {
		c.Simulator.Address = "127.0.0.1:41451"
	}
	if c.Simulator.Lidar == "" {
		c.Simulator.Lidar = "Lidar1"
	}
	if c.Simulator.Camera == "" {
		c.Simulator.Camera = "BottomCamera"
	}
	if c.Simulator.ConnectRetries == 0 {
		c.Simulator.ConnectRetries = 10
	}
	if c.Simulator.ConnectInitialIntervalMs == 0 {
		c.Simulator.ConnectInitialIntervalMs = 500
	}
	if c.Simulator.ConnectMaxIntervalMs == 0 {
		c.Simulator.ConnectMaxIntervalMs = 8000
	}
	if c.Simulator.RPCTimeoutMs == 0 {
		c.Simulator.RPCTimeoutMs = 5000
	}

	if c.Flight.Speed == 0 {
		c.Flight.Speed = 15
	}
	if c.Flight.VerticalSpeed == 0 {
		c.Flight.VerticalSpeed = 5
	}
	if c.Flight.YawRate == 0 {
		c.Flight.YawRate = 30
	}
	if c.Flight.CommandDurationMs == 0 {
		c.Flight.CommandDurationMs = 100
	}
	if c.Flight.LoopPeriodMs == 0 {
		c.Flight.LoopPeriodMs = 50
	}

	if c.Capture.ScanDir == "" {
		c.Capture.ScanDir = filepath.Join("data", "lidar")
	}
	if c.Capture.ImageDir == "" {
		c.Capture.ImageDir = filepath.Join("data", "images")
	}
	if c.Capture.Format == "" {
		c.Capture.Format = FormatXYZ
	}
	if c.Capture.PoseSource == "" {
		c.Capture.PoseSource = PoseSourceVehicle
	}
	if c.Capture.ImageWidth == 0 {
		c.Capture.ImageWidth = 320
	}
	if c.Capture.ImageHeight == 0 {
		c.Capture.ImageHeight = 240
	}

	if c.Processing.Workers == 0 {
		c.Processing.Workers = 1
	}
	if c.Processing.QueueSize == 0 {
		c.Processing.QueueSize = 32
	}
}
