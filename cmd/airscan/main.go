// Package main is the airscan command: keyboard and waypoint flight over the
// simulator with LiDAR capture, plus the live point cloud viewer.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagConfigDir  = "config-dir"
	flagLogLevel   = "log-level"
	flagFormat     = "format"
	flagSaveEvery  = "save-every"
	flagPoseSource = "pose-source"
	flagNoWindow   = "no-window"
	flagKeys       = "keys"
	flagMission    = "mission"
	flagTrack      = "track"
	flagDir        = "dir"
	flagPort       = "port"
	flagVoxel      = "voxel"
	flagMaxPoints  = "max-points"
	flagBus        = "bus"
	flagSession    = "session"

	keysTerminal = "terminal"
	keysWeb      = "web"
)

var captureFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  flagFormat,
		Usage: "scan file format: xyz, npy or las (overrides capture.format)",
	},
	&cli.IntFlag{
		Name:  flagSaveEvery,
		Usage: "save every Nth frame, 0 disables saving (overrides capture.save_every)",
	},
	&cli.StringFlag{
		Name:  flagPoseSource,
		Usage: "pose used for the world transform: vehicle or lidar",
	},
	&cli.BoolFlag{
		Name:  flagNoWindow,
		Usage: "do not open camera or LiDAR windows",
	},
}

func main() {
	app := &cli.App{
		Name:  "airscan",
		Usage: "fly a simulated multirotor and capture LiDAR scans",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:  flagConfigDir,
				Usage: "directory holding airscan_config.yaml",
				Value: "config",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (overrides logging.level)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "check the simulator is reachable",
				Action: connectAction,
			},
			{
				Name:  "fly",
				Usage: "fly with the keyboard and capture scans",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  flagKeys,
						Usage: "key source: terminal or web (the /ws/control websocket)",
						Value: keysTerminal,
					},
				}, captureFlags...),
				Action: flyAction,
			},
			{
				Name:  "survey",
				Usage: "fly a waypoint mission and capture scans",
				Flags: append([]cli.Flag{
					&cli.PathFlag{
						Name:  flagMission,
						Usage: "mission file (default: mission.file from the config)",
					},
					&cli.PathFlag{
						Name:  flagTrack,
						Usage: "where to plot the flown track, empty disables",
						Value: "survey_track.png",
					},
				}, captureFlags...),
				Action: surveyAction,
			},
			{
				Name:  "view",
				Usage: "serve a live view of the scan directory",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagDir,
						Usage: "scan directory (default: capture.scan_dir)",
					},
					&cli.IntFlag{
						Name:  flagPort,
						Usage: "HTTP port (default: server.http_port, or 8080)",
					},
					&cli.Float64Flag{
						Name:  flagVoxel,
						Usage: "voxel size used to thin the cloud, 0 sends every point",
						Value: 0.1,
					},
					&cli.IntFlag{
						Name:  flagMaxPoints,
						Usage: "cap on points sent to the browser, 0 means no cap",
						Value: 200000,
					},
					&cli.StringFlag{
						Name:  flagBus,
						Usage: "ZeroMQ endpoint to take live scans from, e.g. tcp://localhost:5556",
					},
				},
				Action: viewAction,
			},
			{
				Name:  "scans",
				Usage: "list scans recorded in the catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagSession,
						Usage: "list the scans of one session instead of the session summary",
					},
				},
				Action: scansAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
