package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlat(t *testing.T) {
	_, err := FromFlat([]float64{1, 2})
	assert.ErrorIs(t, err, ErrTooFewPoints)

	c, err := FromFlat([]float64{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, c.Points)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, c.Flat())
}

func TestTransformThenFlip(t *testing.T) {
	c := &Cloud{Points: []r3.Vector{{X: 1, Y: 0, Z: 2}}}
	pose := geometry.Pose{Position: r3.Vector{X: 5, Y: 5, Z: -10}, Orientation: geometry.FromYawDeg(90)}

	world := c.Transform(pose).FlipZ()
	require.Equal(t, 1, world.Len())
	assert.InDelta(t, 5.0, world.Points[0].X, 1e-9)
	assert.InDelta(t, 6.0, world.Points[0].Y, 1e-9)
	assert.InDelta(t, 8.0, world.Points[0].Z, 1e-9)

	// the source cloud is untouched
	assert.Equal(t, r3.Vector{X: 1, Y: 0, Z: 2}, c.Points[0])
}

func TestMergeCenterBounds(t *testing.T) {
	a := &Cloud{Points: []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}}}
	b := &Cloud{Points: []r3.Vector{{X: 0, Y: 4, Z: -2}, {X: 2, Y: 4, Z: 2}}}

	m := Merge(a, nil, b)
	assert.Equal(t, 4, m.Len())
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 0}, m.Center())

	box, ok := m.Bounds()
	require.True(t, ok)
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: -2}, box.Min)
	assert.Equal(t, r3.Vector{X: 2, Y: 4, Z: 2}, box.Max)

	_, ok = Merge().Bounds()
	assert.False(t, ok)
	assert.Equal(t, r3.Vector{}, Merge().Center())
}

func TestVoxelDownsample(t *testing.T) {
	c := &Cloud{Points: []r3.Vector{
		{X: 0.1, Y: 0.1, Z: 0.1},
		{X: 0.3, Y: 0.3, Z: 0.3},
		{X: 1.5, Y: 0.5, Z: 0.5},
		{X: -0.5, Y: 0.5, Z: 0.5},
	}}
	d := c.VoxelDownsample(1)
	require.Equal(t, 3, d.Len())
	assert.InDelta(t, 0.2, d.Points[0].X, 1e-12)
	assert.Equal(t, r3.Vector{X: 1.5, Y: 0.5, Z: 0.5}, d.Points[1])
	assert.Equal(t, r3.Vector{X: -0.5, Y: 0.5, Z: 0.5}, d.Points[2])

	assert.Equal(t, 4, c.VoxelDownsample(0).Len())
}

func TestTopDownRaster(t *testing.T) {
	c := &Cloud{Points: []r3.Vector{
		{X: 0, Y: 0, Z: 9},
		{X: 2, Y: -1, Z: 0},
		{X: -60, Y: 0, Z: 0}, // 250 - 300 wraps to 450
	}}
	img := c.TopDownRaster(500, 5)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{A: 255}

	assert.Equal(t, white, img.RGBAAt(250, 250))
	assert.Equal(t, white, img.RGBAAt(260, 245))
	assert.Equal(t, white, img.RGBAAt(450, 250))
	assert.Equal(t, black, img.RGBAAt(0, 0))
	assert.Equal(t, 500, img.Bounds().Dx())
}

func TestNilCloudIsEmpty(t *testing.T) {
	var c *Cloud
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Flat())
	assert.Equal(t, 0, c.Transform(geometry.Pose{}).Len())
	assert.Nil(t, c.FlipZ())
	assert.Equal(t, 0, c.VoxelDownsample(0).Len())
	assert.Equal(t, 0, c.VoxelDownsample(0.5).Len())
	assert.Equal(t, r3.Vector{}, c.Center())
	_, ok := c.Bounds()
	assert.False(t, ok)
	assert.NotNil(t, c.TopDownRaster(8, 1))
}
