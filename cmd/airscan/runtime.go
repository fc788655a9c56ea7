package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-teleop/airscan/domain/capture"
	"github.com/open-teleop/airscan/domain/telemetry"
	"github.com/open-teleop/airscan/domain/video"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/api"
	"github.com/open-teleop/airscan/pkg/catalog"
	"github.com/open-teleop/airscan/pkg/config"
	"github.com/open-teleop/airscan/pkg/display"
	"github.com/open-teleop/airscan/pkg/display/cvwindow"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/processing"
	"github.com/open-teleop/airscan/pkg/scanstore"
	"github.com/open-teleop/airscan/pkg/zeromq"
	"github.com/open-teleop/airscan/services"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 5 * time.Second

// loadConfig reads the bootstrap config and builds the logger.
func loadConfig(c *cli.Context, opts ...customlog.Option) (*config.BootstrapConfig, customlog.Logger, error) {
	cfg, err := config.LoadBootstrapConfig(c.Path(flagConfigDir))
	if err != nil {
		return nil, nil, err
	}
	if lvl := c.String(flagLogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// applyCaptureFlags folds the per-command capture overrides into cfg.
func applyCaptureFlags(c *cli.Context, cfg *config.BootstrapConfig) error {
	if v := c.String(flagFormat); v != "" {
		cfg.Capture.Format = v
	}
	if c.IsSet(flagSaveEvery) {
		v := c.Int(flagSaveEvery)
		cfg.Capture.SaveEvery = &v
	}
	if v := c.String(flagPoseSource); v != "" {
		cfg.Capture.PoseSource = v
	}
	return cfg.Validate()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func connectOptions(sim config.SimulatorConfig) airsim.ConnectOptions {
	return airsim.ConnectOptions{
		Retries:         sim.ConnectRetries,
		InitialInterval: time.Duration(sim.ConnectInitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(sim.ConnectMaxIntervalMs) * time.Millisecond,
		RPCTimeout:      time.Duration(sim.RPCTimeoutMs) * time.Millisecond,
	}
}

// flight holds everything a flight command runs against. close releases it
// in reverse order of construction.
type flight struct {
	cfg    *config.BootstrapConfig
	logger customlog.Logger

	client    *airsim.Client
	drone     *airsim.Multirotor
	sensor    *capture.Sensor
	bus       *zeromq.ZeroMQService
	publisher *zeromq.Publisher
	pool      *processing.FramePool
	telemetry *telemetry.Service
	video     *video.VideoService
	display   display.Display

	closers []func()
}

// newFlight connects to the simulator and starts the capture pipeline.
func newFlight(ctx context.Context, cfg *config.BootstrapConfig, showWindows bool, logger customlog.Logger) (*flight, error) {
	f := &flight{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			f.close()
		}
	}()

	var err error
	f.client, err = airsim.Connect(ctx, cfg.Simulator.Address, connectOptions(cfg.Simulator), logger)
	if err != nil {
		return nil, err
	}
	f.onClose(func() { f.client.Close() })
	f.drone = f.client.Multirotor(cfg.Simulator.Vehicle)
	f.sensor = capture.NewSensor(f.drone, capture.OptionsFromConfig(cfg.Simulator, cfg.Capture), logger)
	logger.Infof("Capture session %s", f.sensor.Session())

	store, err := scanstore.New(cfg.Capture.ScanDir, cfg.Capture.Format, logger)
	if err != nil {
		return nil, err
	}

	var recorder processing.ScanRecorder
	if cfg.Catalog.Path != "" {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		f.onClose(func() {
			if err := cat.Close(); err != nil {
				logger.Warnf("Failed to close catalog: %v", err)
			}
		})
		recorder = cat
	}

	var (
		scanPublisher      processing.ScanPublisher
		messagePublisher   processing.MessagePublisher
		telemetryPublisher telemetry.Publisher
	)
	if cfg.ZeroMQ.PublishAddress != "" {
		f.bus, err = zeromq.NewZeroMQService(cfg.ZeroMQ, logger)
		if err != nil {
			return nil, err
		}
		f.onClose(f.bus.Stop)
		f.publisher = zeromq.NewPublisher(f.bus, logger)
		scanPublisher, messagePublisher, telemetryPublisher = f.publisher, f.publisher, f.publisher
	}

	f.telemetry = telemetry.NewService(telemetryPublisher)
	f.video = video.NewVideoService(logger)

	f.pool = processing.NewFramePool("scan-writer", cfg.Processing.Workers, cfg.Processing.QueueSize, logger)
	processor := processing.NewScanProcessor(logger, store, cfg.Capture.ImageDir, recorder, scanPublisher)
	f.pool.SetProcessor(processor.CreateProcessorFunc())
	f.pool.SetResultHandler(processing.NewLoggingResultHandler(logger, messagePublisher).CreateHandlerFunc())
	f.pool.Start()
	f.onClose(f.pool.Stop)

	if showWindows {
		f.display = cvwindow.New()
	}
	ready = true
	return f, nil
}

func (f *flight) onClose(fn func()) {
	f.closers = append(f.closers, fn)
}

// startBus registers the request handlers and starts the bus, if configured.
func (f *flight) startBus(missions services.MissionService) error {
	if f.bus == nil {
		return nil
	}
	var mission func() (interface{}, error)
	if missions != nil {
		missions.SetPublisher(f.publisher)
		mission = func() (interface{}, error) { return missions.GetCurrentMission(), nil }
	}
	zeromq.RegisterSnapshotHandlers(f.bus, mission, f.telemetry.Snapshot, f.logger)
	return f.bus.Start()
}

// startServer serves the HTTP API when server.http_port is set.
func (f *flight) startServer(deps api.Dependencies) {
	if f.cfg.Server.HTTPPort == 0 {
		return
	}
	deps.Telemetry = f.telemetry
	deps.Video = f.video
	srv := api.NewServer("airscan", deps, f.logger)
	srv.Start(f.cfg.Server.HTTPPort)
	f.onClose(func() {
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			f.logger.Warnf("%v", err)
		}
	})
}

func (f *flight) close() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		f.closers[i]()
	}
	f.closers = nil
}

// keySource opens the terminal, or returns a feed fed by /ws/control.
// Terminal keys have no release event, so they use the hold timeout.
func keySource(kind string) (keyboard.Source, *keyboard.Feed, time.Duration, error) {
	switch kind {
	case keysTerminal:
		src, err := keyboard.NewTerminalSource(os.Stdin)
		if err != nil {
			return nil, nil, 0, err
		}
		return src, nil, keyboard.DefaultHoldTimeout, nil
	case keysWeb:
		feed := keyboard.NewFeed(64)
		return feed, feed, 0, nil
	default:
		return nil, nil, 0, fmt.Errorf("invalid --%s %q (want %s or %s)", flagKeys, kind, keysTerminal, keysWeb)
	}
}
