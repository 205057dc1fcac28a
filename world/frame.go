package world

import "github.com/golang/geo/r3"

// Frame is an orthonormal coordinate frame. Origin is the world position of
// local (0,0,0).
type Frame struct {
	Origin r3.Vector
	X      r3.Vector
	Y      r3.Vector
	Z      r3.Vector
}

// Identity returns an axis-aligned frame at origin.
func Identity(origin r3.Vector) Frame {
	return Frame{
		Origin: origin,
		X:      r3.Vector{X: 1},
		Y:      r3.Vector{Y: 1},
		Z:      r3.Vector{Z: 1},
	}
}

func (f Frame) Rotate(local r3.Vector) r3.Vector {
	return f.X.Mul(local.X).Add(f.Y.Mul(local.Y)).Add(f.Z.Mul(local.Z))
}

func (f Frame) ToWorld(local r3.Vector) r3.Vector {
	return f.Origin.Add(f.Rotate(local))
}

func (f Frame) ToLocal(p r3.Vector) r3.Vector {
	d := p.Sub(f.Origin)
	return r3.Vector{X: d.Dot(f.X), Y: d.Dot(f.Y), Z: d.Dot(f.Z)}
}

// RotateToLocal expresses a world direction in the frame's axes.
func (f Frame) RotateToLocal(dir r3.Vector) r3.Vector {
	return r3.Vector{X: dir.Dot(f.X), Y: dir.Dot(f.Y), Z: dir.Dot(f.Z)}
}
