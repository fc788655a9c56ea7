package geometry

import "github.com/golang/geo/r3"

// Pose is a rigid transform: rotate by Orientation, then translate by Position.
type Pose struct {
	Position    r3.Vector
	Orientation Quaternion
}

// Apply maps v from the body frame into the parent frame (R·v + t).
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return p.Matrix().Apply(v)
}

// Matrix precomputes the rotation so many points can share it.
func (p Pose) Matrix() Transform {
	return Transform{R: p.Orientation.RotationMatrix(), T: p.Position}
}

// Transform is a pose with its rotation expanded to a matrix.
type Transform struct {
	R [3][3]float64
	T r3.Vector
}

// Apply returns R·v + T.
func (t Transform) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.R[0][0]*v.X + t.R[0][1]*v.Y + t.R[0][2]*v.Z + t.T.X,
		Y: t.R[1][0]*v.X + t.R[1][1]*v.Y + t.R[1][2]*v.Z + t.T.Y,
		Z: t.R[2][0]*v.X + t.R[2][1]*v.Y + t.R[2][2]*v.Z + t.T.Z,
	}
}
