// Package pointcloud holds LiDAR returns as 3-D points and the operations the
// flight tools and the viewer apply to them.
package pointcloud

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/geometry"
)

// ErrTooFewPoints is returned for a flat buffer holding less than one triple.
var ErrTooFewPoints = errors.New("pointcloud: fewer than 3 values")

// Cloud is an ordered set of points. A nil *Cloud reads as empty.
type Cloud struct {
	Points []r3.Vector
}

func (c *Cloud) points() []r3.Vector {
	if c == nil {
		return nil
	}
	return c.Points
}

// FromFlat groups a flat [x0 y0 z0 x1 ...] buffer into points. A trailing
// partial triple is dropped.
func FromFlat(values []float64) (*Cloud, error) {
	if len(values) < 3 {
		return nil, ErrTooFewPoints
	}
	n := len(values) / 3
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: values[3*i], Y: values[3*i+1], Z: values[3*i+2]}
	}
	return &Cloud{Points: pts}, nil
}

// Len is the number of points.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// Flat returns the points as [x0 y0 z0 x1 ...].
func (c *Cloud) Flat() []float64 {
	out := make([]float64, 0, 3*c.Len())
	for _, p := range c.points() {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// Transform returns a new cloud with every point mapped through pose.
func (c *Cloud) Transform(pose geometry.Pose) *Cloud {
	m := pose.Matrix()
	out := make([]r3.Vector, c.Len())
	for i, p := range c.points() {
		out[i] = m.Apply(p)
	}
	return &Cloud{Points: out}
}

// FlipZ negates every Z in place, turning NED depth into height.
func (c *Cloud) FlipZ() *Cloud {
	for i := range c.points() {
		c.Points[i].Z = -c.Points[i].Z
	}
	return c
}

// Merge concatenates clouds in order. Nil clouds are skipped.
func Merge(clouds ...*Cloud) *Cloud {
	total := 0
	for _, c := range clouds {
		total += c.Len()
	}
	out := make([]r3.Vector, 0, total)
	for _, c := range clouds {
		if c != nil {
			out = append(out, c.Points...)
		}
	}
	return &Cloud{Points: out}
}

// Center is the mean of all points; zero for an empty cloud.
func (c *Cloud) Center() r3.Vector {
	if c.Len() == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range c.points() {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(c.Points)))
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// Bounds returns the bounding box and false for an empty cloud.
func (c *Cloud) Bounds() (Box, bool) {
	if c.Len() == 0 {
		return Box{}, false
	}
	b := Box{Min: c.Points[0], Max: c.Points[0]}
	for _, p := range c.Points[1:] {
		b.Min = r3.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = r3.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return b, true
}

type voxel struct{ x, y, z int64 }

// VoxelDownsample keeps one point per cube of side size, the centroid of the
// points that fell into it. Voxels keep first-seen order. size <= 0 returns a
// copy.
func (c *Cloud) VoxelDownsample(size float64) *Cloud {
	if size <= 0 {
		return &Cloud{Points: append([]r3.Vector(nil), c.points()...)}
	}
	type acc struct {
		sum r3.Vector
		n   int
	}
	index := make(map[voxel]int)
	var cells []acc
	for _, p := range c.points() {
		k := voxel{
			x: int64(math.Floor(p.X / size)),
			y: int64(math.Floor(p.Y / size)),
			z: int64(math.Floor(p.Z / size)),
		}
		i, ok := index[k]
		if !ok {
			i = len(cells)
			index[k] = i
			cells = append(cells, acc{})
		}
		cells[i].sum = cells[i].sum.Add(p)
		cells[i].n++
	}
	out := make([]r3.Vector, len(cells))
	for i, a := range cells {
		out[i] = a.sum.Mul(1 / float64(a.n))
	}
	return &Cloud{Points: out}
}
