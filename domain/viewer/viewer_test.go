package viewer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/keyboard"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/pkg/pointcloud"
	"github.com/open-teleop/airscan/pkg/scanstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() customlog.Logger {
	return customlog.Must("error", "")
}

func cloudOf(points ...r3.Vector) *pointcloud.Cloud {
	return &pointcloud.Cloud{Points: points}
}

func saveScan(t *testing.T, dir string, frame int, cloud *pointcloud.Cloud) {
	t.Helper()
	store, err := scanstore.New(dir, scanstore.FormatXYZ, nil)
	require.NoError(t, err)
	_, err = store.Save(frame, 0, cloud)
	require.NoError(t, err)
}

// next waits for an update matching ok, skipping intermediate ones.
func next(t *testing.T, updates <-chan *CloudUpdate, ok func(*CloudUpdate) bool) *CloudUpdate {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			if ok(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for cloud update")
			return nil
		}
	}
}

func TestHubPrimesNewSubscribers(t *testing.T) {
	h := NewHub()
	first, cancelFirst := h.Subscribe()
	defer cancelFirst()

	h.Publish(&CloudUpdate{Sequence: 1})
	h.Publish(&CloudUpdate{Sequence: 2})
	assert.Equal(t, uint64(2), (<-first).Sequence, "only the newest update is pending")

	second, cancelSecond := h.Subscribe()
	assert.Equal(t, uint64(2), (<-second).Sequence)
	assert.Equal(t, 2, h.Subscribers())

	cancelSecond()
	cancelSecond()
	assert.Equal(t, 1, h.Subscribers())
	_, open := <-second
	assert.False(t, open)
}

func TestRefreshMergesAndSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	saveScan(t, dir, 0, cloudOf(r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 2, Y: 2, Z: 2}))
	saveScan(t, dir, 1, cloudOf(r3.Vector{X: 4, Y: 4, Z: 4}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan_00002.xyz"), []byte("1 2\n"), 0644))

	v := NewViewer(Options{Dir: dir}, testLogger())
	published, err := v.Refresh()
	require.NoError(t, err)
	require.True(t, published)

	u := v.Hub().Latest()
	require.NotNil(t, u)
	assert.Equal(t, []string{"scan_00000.xyz", "scan_00001.xyz"}, u.Files)
	assert.Equal(t, []string{"scan_00002.xyz"}, u.Skipped)
	assert.Equal(t, 3, u.TotalPoints)
	assert.Len(t, u.Points, 9)
	assert.InDelta(t, 2.0, u.Center.X, 1e-9)
	assert.Equal(t, 4.0, u.Bounds.Max.Z)
	assert.Equal(t, DefaultZoom, u.Zoom)

	published, err = v.Refresh()
	require.NoError(t, err)
	assert.False(t, published, "unchanged file set is not republished")
}

func TestDownsampleAndCap(t *testing.T) {
	dir := t.TempDir()
	saveScan(t, dir, 0, cloudOf(
		r3.Vector{X: 0.1}, r3.Vector{X: 0.2}, r3.Vector{X: 0.3},
		r3.Vector{X: 5.1}, r3.Vector{X: 9.1}, r3.Vector{X: 13.1},
	))

	v := NewViewer(Options{Dir: dir, VoxelSize: 1, MaxPoints: 2}, testLogger())
	_, err := v.Refresh()
	require.NoError(t, err)

	u := v.Hub().Latest()
	assert.Equal(t, 6, u.TotalPoints)
	// four voxels, strided down to two points
	require.Len(t, u.Points, 6)
	assert.InDelta(t, 0.2, u.Points[0], 1e-6)
	assert.InDelta(t, 9.1, u.Points[3], 1e-5)
}

func TestAddLiveKeepsDiskFiles(t *testing.T) {
	dir := t.TempDir()
	saveScan(t, dir, 0, cloudOf(r3.Vector{X: 1}))
	v := NewViewer(Options{Dir: dir, MaxLive: 1}, testLogger())
	_, err := v.Refresh()
	require.NoError(t, err)

	v.AddLive(1, 1000, cloudOf(r3.Vector{X: 2}))
	v.AddLive(2, 2000, cloudOf(r3.Vector{X: 3}))
	v.AddLive(3, 3000, nil)

	u := v.Hub().Latest()
	assert.Equal(t, []string{"scan_00000.xyz"}, u.Files)
	assert.Equal(t, 1, u.LiveScans)
	assert.Equal(t, 2, u.TotalPoints)
}

func TestAddLiveSkipsScansOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := scanstore.New(dir, scanstore.FormatXYZ, nil)
	require.NoError(t, err)
	_, err = store.Save(5, 1700000000123, cloudOf(r3.Vector{X: 1}, r3.Vector{X: 2}))
	require.NoError(t, err)

	v := NewViewer(Options{Dir: dir}, testLogger())
	_, err = v.Refresh()
	require.NoError(t, err)

	// Same frame and capture time as the saved file.
	v.AddLive(5, 1700000000123, cloudOf(r3.Vector{X: 1}, r3.Vector{X: 2}))
	u := v.Hub().Latest()
	assert.Equal(t, 0, u.LiveScans)
	assert.Equal(t, 2, u.TotalPoints)

	v.AddLive(6, 1700000000456, cloudOf(r3.Vector{X: 3}))
	v.AddLive(6, 1700000000456, cloudOf(r3.Vector{X: 3}))
	u = v.Hub().Latest()
	assert.Equal(t, 1, u.LiveScans)
	assert.Equal(t, 3, u.TotalPoints)

	// Once frame 6 lands on disk the live copy is dropped.
	_, err = store.Save(6, 1700000000456, cloudOf(r3.Vector{X: 3}))
	require.NoError(t, err)
	published, err := v.Refresh()
	require.NoError(t, err)
	require.True(t, published)
	u = v.Hub().Latest()
	assert.Equal(t, 0, u.LiveScans)
	assert.Equal(t, 3, u.TotalPoints)
	assert.Len(t, u.Files, 2)
}

func TestRunPublishesNewScans(t *testing.T) {
	dir := t.TempDir()
	saveScan(t, dir, 0, cloudOf(r3.Vector{X: 1, Y: 1, Z: 1}))

	v := NewViewer(Options{Dir: dir, Debounce: 10 * time.Millisecond}, testLogger())
	updates, unsubscribe := v.Hub().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx, nil) }()

	first := next(t, updates, func(u *CloudUpdate) bool { return len(u.Files) == 1 })
	assert.Equal(t, 1, first.TotalPoints)

	saveScan(t, dir, 20, cloudOf(r3.Vector{X: 2}, r3.Vector{X: 3}))
	second := next(t, updates, func(u *CloudUpdate) bool { return len(u.Files) == 2 })
	assert.Equal(t, 3, second.TotalPoints)

	require.NoError(t, os.Remove(filepath.Join(dir, "scan_00000.xyz")))
	third := next(t, updates, func(u *CloudUpdate) bool { return len(u.Files) == 1 })
	assert.Equal(t, 2, third.TotalPoints)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not stop")
	}
}

func TestRunQuitsOnQ(t *testing.T) {
	keys := keyboard.NewState(0)
	keys.Apply(keyboard.Event{Key: keyboard.KeyQ, Pressed: true})

	v := NewViewer(Options{Dir: filepath.Join(t.TempDir(), "lidar")}, testLogger())
	done := make(chan error, 1)
	go func() { done <- v.Run(context.Background(), keys) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer ignored q")
	}
}
