// Package geometry holds the rigid-body math used to move LiDAR returns from
// the sensor frame into the simulator's world (NED) frame.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation quaternion in (w, x, y, z) order.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity is the zero rotation.
var Identity = Quaternion{W: 1}

// FromNumber converts a gonum quaternion.
func FromNumber(n quat.Number) Quaternion {
	return Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// Number converts to a gonum quaternion.
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Norm is the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.Number())
}

// IsValid reports whether q can be normalized into a rotation.
func (q Quaternion) IsValid() bool {
	n := q.Norm()
	return n > 0 && !math.IsNaN(n) && !math.IsInf(n, 0)
}

// Normalize returns the unit quaternion with the same rotation. A zero or
// non-finite quaternion normalizes to Identity.
func (q Quaternion) Normalize() Quaternion {
	if !q.IsValid() {
		return Identity
	}
	return FromNumber(quat.Scale(1/q.Norm(), q.Number()))
}

// Rotate applies the rotation to v as q·v·q*.
func (q Quaternion) Rotate(v r3.Vector) r3.Vector {
	u := q.Normalize().Number()
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(u, p), quat.Conj(u))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RotationMatrix returns the 3x3 row-major matrix R with R·v == Rotate(v).
func (q Quaternion) RotationMatrix() [3][3]float64 {
	u := q.Normalize()
	w, x, y, z := u.W, u.X, u.Y, u.Z
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// YawDeg is the heading about the world Z axis in degrees, in (-180, 180].
func (q Quaternion) YawDeg() float64 {
	u := q.Normalize()
	siny := 2 * (u.W*u.Z + u.X*u.Y)
	cosy := 1 - 2*(u.Y*u.Y+u.Z*u.Z)
	return math.Atan2(siny, cosy) * 180 / math.Pi
}

// FromYawDeg is a rotation of deg degrees about Z.
func FromYawDeg(deg float64) Quaternion {
	half := deg * math.Pi / 360
	return Quaternion{W: math.Cos(half), Z: math.Sin(half)}
}
