package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "db", "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordAndList(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	require.NoError(t, c.Record(ctx, ScanRecord{Session: "a", Frame: 0, Path: "scan_00000.xyz", Format: "xyz", Points: 10, CapturedAt: base, X: 1, Y: 2, Z: -5}))
	require.NoError(t, c.Record(ctx, ScanRecord{Session: "a", Frame: 20, Path: "scan_00020.xyz", Format: "xyz", Points: 12, CapturedAt: base.Add(time.Second)}))
	require.NoError(t, c.Record(ctx, ScanRecord{Session: "b", Frame: 0, Path: "scan_00000.npy", Format: "npy", Points: 5, CapturedAt: base.Add(time.Minute), ImagePath: "frame.png"}))

	a, err := c.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, 20, a[1].Frame)
	assert.Equal(t, -5.0, a[0].Z)
	assert.True(t, a[0].CapturedAt.Equal(base))

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "frame.png", all[2].ImagePath)
}

func TestRecordReplacesSameFrame(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	rec := ScanRecord{Session: "a", Frame: 3, Path: "old", Format: "xyz", Points: 1, CapturedAt: time.UnixMilli(1)}
	require.NoError(t, c.Record(ctx, rec))
	rec.Path = "new"
	require.NoError(t, c.Record(ctx, rec))

	list, err := c.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Path)
}

func TestSessions(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	for i, s := range []string{"first", "first", "second"} {
		require.NoError(t, c.Record(ctx, ScanRecord{
			Session: s, Frame: i, Path: "p", Format: "xyz", Points: 100, CapturedAt: time.UnixMilli(int64(1000 * (i + 1))),
		}))
	}

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, SessionSummary{Session: "first", Scans: 2, Points: 200, First: time.UnixMilli(1000), Last: time.UnixMilli(2000)}, sessions[0])
	assert.Equal(t, "second", sessions[1].Session)

	empty := openTemp(t)
	none, err := empty.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
