package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/open-teleop/airscan/domain/survey"
	"github.com/open-teleop/airscan/domain/teleop"
	"github.com/open-teleop/airscan/domain/viewer"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/open-teleop/airscan/pkg/api"
	"github.com/open-teleop/airscan/pkg/catalog"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/zeromq"
	"github.com/open-teleop/airscan/services"
	"github.com/urfave/cli/v2"
)

func connectAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	client, err := airsim.Connect(ctx, cfg.Simulator.Address, connectOptions(cfg.Simulator), logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Could not reach the simulator at %s: %v", cfg.Simulator.Address, err), 1)
	}
	defer client.Close()

	fmt.Printf("Connected to the simulator at %s\n", cfg.Simulator.Address)
	return nil
}

func flyAction(c *cli.Context) error {
	kind := c.String(flagKeys)
	var logOpts []customlog.Option
	if kind == keysTerminal {
		logOpts = append(logOpts, customlog.WithCRLF())
	}
	cfg, logger, err := loadConfig(c, logOpts...)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := applyCaptureFlags(c, cfg); err != nil {
		return cli.Exit(err, 1)
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	src, feed, hold, err := keySource(kind)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer src.Close()
	keys := keyboard.NewState(hold)
	go keys.Run(ctx, src)

	f, err := newFlight(ctx, cfg, !c.Bool(flagNoWindow), logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.close()

	if err := f.startBus(nil); err != nil {
		return cli.Exit(err, 1)
	}
	f.startServer(api.Dependencies{Control: feed})
	if feed != nil && cfg.Server.HTTPPort == 0 {
		logger.Warnf("--%s %s needs server.http_port; no keys will arrive", flagKeys, keysWeb)
	}

	session := teleop.NewSession(f.drone, keys, teleop.KeyMapFromConfig(cfg.Flight), f.sensor,
		teleop.OptionsFromConfig(cfg, nil), logger)
	session.SetSink(f.pool)
	session.SetTelemetry(f.telemetry)
	session.SetFrameListener(f.video.HandleFrame)
	if f.display != nil {
		session.SetDisplay(f.display)
	}

	logger.Infof("Controls: w/s forward/back, a/d left/right, up/down climb/descend, left/right yaw, esc or x to land")
	return session.Run(ctx)
}

func surveyAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c, customlog.WithCRLF())
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := applyCaptureFlags(c, cfg); err != nil {
		return cli.Exit(err, 1)
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	missionPath := c.Path(flagMission)
	if missionPath == "" {
		missionPath = cfg.Mission.File
	}
	if missionPath == "" {
		missionPath = filepath.Join(c.Path(flagConfigDir), "mission.yaml")
	}
	missions, err := services.NewMissionService(missionPath, logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	plan := missions.GetCurrentMission()

	f, err := newFlight(ctx, cfg, !c.Bool(flagNoWindow), logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.close()

	if err := f.startBus(missions); err != nil {
		return cli.Exit(err, 1)
	}
	f.startServer(api.Dependencies{Missions: missions})

	m := survey.NewMission(f.drone, f.sensor, plan, logger)
	m.SetSink(f.pool, cfg.Capture.SaveInterval())
	m.SetTelemetry(f.telemetry)
	m.SetTrackPath(c.Path(flagTrack))
	if f.display != nil {
		m.SetDisplay(f.display)
	}

	if src, err := keyboard.NewTerminalSource(os.Stdin); err != nil {
		logger.Warnf("Keyboard abort unavailable: %v", err)
	} else {
		defer src.Close()
		keys := keyboard.NewState(keyboard.DefaultHoldTimeout)
		go keys.Run(ctx, src)
		m.SetKeys(keys)
	}

	logger.Infof("Flying mission %q: %d waypoints at %.1f m", plan.Name, len(plan.Waypoints), plan.Altitude)
	return m.Run(ctx)
}

func viewAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c, customlog.WithCRLF())
	if err != nil {
		return cli.Exit(err, 1)
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	dir := c.Path(flagDir)
	if dir == "" {
		dir = cfg.Capture.ScanDir
	}
	port := c.Int(flagPort)
	if port == 0 {
		port = cfg.Server.HTTPPort
	}
	if port == 0 {
		port = 8080
	}

	v := viewer.NewViewer(viewer.Options{
		Dir:       dir,
		VoxelSize: c.Float64(flagVoxel),
		MaxPoints: c.Int(flagMaxPoints),
	}, logger)

	if bus := c.String(flagBus); bus != "" {
		sub, err := zeromq.NewScanSubscriber(bus, func(m *zeromq.ScanMessage) {
			v.AddLive(m.Frame, m.TimestampNs/int64(time.Millisecond), m.Cloud)
		}, logger)
		if err != nil {
			return cli.Exit(err, 1)
		}
		sub.Start()
		defer sub.Stop()
	}

	srv := api.NewServer("airscan viewer", api.Dependencies{Clouds: v.Hub()}, logger)
	srv.Start(port)
	defer func() {
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			logger.Warnf("%v", err)
		}
	}()
	logger.Infof("Viewer at http://localhost:%d/viewer, watching %s", port, dir)

	var keys *keyboard.State
	if src, err := keyboard.NewTerminalSource(os.Stdin); err != nil {
		logger.Debugf("No terminal keys: %v", err)
	} else {
		defer src.Close()
		keys = keyboard.NewState(keyboard.DefaultHoldTimeout)
		go keys.Run(ctx, src)
		logger.Infof("Press q to quit")
	}

	if err := v.Run(ctx, keys); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(err, 1)
	}
	return nil
}

func scansAction(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if cfg.Catalog.Path == "" {
		return cli.Exit("catalog.path is not set in the config", 1)
	}
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer cat.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if session := c.String(flagSession); session != "" {
		records, err := cat.List(c.Context, session)
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Fprintln(w, "FRAME\tPOINTS\tCAPTURED\tPOSITION\tPATH")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%d\t%s\t(%.2f, %.2f, %.2f)\t%s\n",
				r.Frame, r.Points, r.CapturedAt.Format(time.DateTime), r.X, r.Y, r.Z, r.Path)
		}
		return nil
	}

	sessions, err := cat.Sessions(c.Context)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Fprintln(w, "SESSION\tSCANS\tPOINTS\tFIRST\tLAST")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			s.Session, s.Scans, s.Points, s.First.Format(time.DateTime), s.Last.Format(time.DateTime))
	}
	return nil
}
