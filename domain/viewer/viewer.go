// Package viewer keeps a merged view of every scan in a directory up to date
// and broadcasts it to connected clients.
package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
	"github.com/open-teleop/airscan/pkg/scanstore"
)

// DefaultZoom is the initial camera zoom suggested to clients.
const DefaultZoom = 0.7

// CloudUpdate is what clients render: the merged cloud, reduced for display,
// plus where to look at it.
type CloudUpdate struct {
	Sequence    uint64         `json:"sequence"`
	Files       []string       `json:"files"`
	Skipped     []string       `json:"skipped,omitempty"`
	LiveScans   int            `json:"live_scans"`
	TotalPoints int            `json:"total_points"`
	Points      []float32      `json:"points"`
	Center      r3.Vector      `json:"center"`
	Bounds      pointcloud.Box `json:"bounds"`
	Zoom        float64        `json:"zoom"`
}

// Options configures a Viewer.
type Options struct {
	Dir       string
	Debounce  time.Duration
	VoxelSize float64 // zero sends every point
	MaxPoints int     // zero means no cap
	MaxLive   int     // live scans kept from the bus
}

// Viewer watches a scan directory.
type Viewer struct {
	opts   Options
	logger customlog.Logger
	hub    *Hub

	mu     sync.Mutex
	files  []string
	onDisk map[string]bool // scan names loaded from files
	disk   *pointcloud.Cloud
	live   []liveScan
	seq    uint64
}

// liveScan is a bus scan not yet seen on disk.
type liveScan struct {
	name  string
	cloud *pointcloud.Cloud
}

// NewViewer creates a viewer for opts.Dir.
func NewViewer(opts Options, logger customlog.Logger) *Viewer {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.MaxLive <= 0 {
		opts.MaxLive = 200
	}
	return &Viewer{opts: opts, logger: logger, hub: NewHub()}
}

// Hub is where updates are published.
func (v *Viewer) Hub() *Hub { return v.hub }

// Run publishes the current scans, then republishes whenever the set of scan
// files changes. It returns when ctx ends or q is pressed on keys (which may
// be nil).
func (v *Viewer) Run(ctx context.Context, keys *keyboard.State) error {
	if err := os.MkdirAll(v.opts.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create scan directory '%s': %w", v.opts.Dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(v.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch '%s': %w", v.opts.Dir, err)
	}
	v.logger.Infof("Watching %s for scans", v.opts.Dir)

	if _, err := v.Refresh(); err != nil {
		v.logger.Warnf("Initial scan load failed: %v", err)
	}

	var quit <-chan time.Time
	if keys != nil {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		quit = ticker.C
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) || !scanstore.IsScanFile(ev.Name) {
				continue
			}
			v.logger.Debugf("Scan directory event: %s", ev)
			if settle == nil {
				settle = time.After(v.opts.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warnf("Watcher error: %v", err)

		case <-settle:
			settle = nil
			if _, err := v.Refresh(); err != nil {
				v.logger.Warnf("Scan reload failed: %v", err)
			}

		case <-quit:
			if keys.Triggered(keyboard.KeyQ) {
				v.logger.Infof("Q pressed, quitting visualizer.")
				return nil
			}
		}
	}
}

// Refresh re-lists the directory and, when the set of files changed, merges
// the scans and publishes an update. It reports whether it published.
func (v *Viewer) Refresh() (bool, error) {
	files, err := scanstore.List(v.opts.Dir)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disk != nil && slices.Equal(files, v.files) {
		return false, nil
	}

	merged := scanstore.LoadFiles(files)
	for _, s := range merged.Skipped {
		v.logger.Warnf("Skipping %s: %v", s.Path, s.Err)
	}
	v.files = files
	v.disk = merged.Cloud
	v.onDisk = make(map[string]bool, len(merged.Files))
	for _, f := range merged.Files {
		v.onDisk[scanstore.NameOf(f)] = true
	}
	v.live = slices.DeleteFunc(v.live, func(l liveScan) bool { return v.onDisk[l.name] })

	u := v.buildLocked()
	for _, f := range merged.Files {
		u.Files = append(u.Files, filepath.Base(f))
	}
	for _, s := range merged.Skipped {
		u.Skipped = append(u.Skipped, filepath.Base(s.Path))
	}
	v.logger.Infof("Merged %d scans, %d points", len(u.Files), u.TotalPoints)
	v.hub.Publish(u)
	return true, nil
}

// AddLive merges a scan received over the bus. Scans are identified by
// frame and capture time (unix ms), as in their file names; one already
// loaded from disk, or already added, is ignored. A live scan is dropped once
// its file shows up.
func (v *Viewer) AddLive(frame int, tsMillis int64, cloud *pointcloud.Cloud) {
	if cloud.Len() == 0 {
		return
	}
	name := scanstore.ScanName(frame, tsMillis)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.onDisk[name] || slices.ContainsFunc(v.live, func(l liveScan) bool { return l.name == name }) {
		return
	}
	v.live = append(v.live, liveScan{name: name, cloud: cloud})
	if len(v.live) > v.opts.MaxLive {
		v.live = v.live[len(v.live)-v.opts.MaxLive:]
	}
	u := v.buildLocked()
	if prev := v.hub.Latest(); prev != nil {
		u.Files, u.Skipped = prev.Files, prev.Skipped
	}
	v.hub.Publish(u)
}

func (v *Viewer) buildLocked() *CloudUpdate {
	clouds := []*pointcloud.Cloud{v.disk}
	for _, l := range v.live {
		clouds = append(clouds, l.cloud)
	}
	all := pointcloud.Merge(clouds...)
	v.seq++
	u := &CloudUpdate{
		Sequence:    v.seq,
		LiveScans:   len(v.live),
		TotalPoints: all.Len(),
		Zoom:        DefaultZoom,
		Files:       []string{},
	}
	if all.Len() == 0 {
		u.Points = []float32{}
		return u
	}

	u.Center = all.Center()
	u.Bounds, _ = all.Bounds()

	shown := all
	if v.opts.VoxelSize > 0 {
		shown = all.VoxelDownsample(v.opts.VoxelSize)
	}
	u.Points = flatten(shown.Points, v.opts.MaxPoints)
	return u
}

// flatten packs points as x,y,z float32 triples, striding through them when
// there are more than limit.
func flatten(points []r3.Vector, limit int) []float32 {
	step := 1
	if limit > 0 && len(points) > limit {
		step = (len(points) + limit - 1) / limit
	}
	out := make([]float32, 0, 3*(len(points)/step+1))
	for i := 0; i < len(points); i += step {
		p := points[i]
		out = append(out, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return out
}
