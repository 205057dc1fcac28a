package common

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

var (
	sqrt2 = math.Sqrt2
	sqrt3 = math.Sqrt(3)
)

func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundTo rounds v to the nearest multiple of step.
func RoundTo(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

// SnapToLattice moves p onto the cubic lattice of edge step that passes through ref.
func SnapToLattice(p, ref r3.Vector, step float64) r3.Vector {
	d := p.Sub(ref)
	return r3.Vector{
		X: ref.X + RoundTo(d.X, step),
		Y: ref.Y + RoundTo(d.Y, step),
		Z: ref.Z + RoundTo(d.Z, step),
	}
}

// Reject splits v into its length along the unit vector dir and the
// component perpendicular to dir.
func Reject(v, dir r3.Vector) (float64, r3.Vector) {
	proj := v.Dot(dir)
	return proj, v.Sub(dir.Mul(proj))
}

// Basis returns two unit vectors that, together with the unit vector dir,
// form a right-handed orthonormal basis.
func Basis(dir r3.Vector) (r3.Vector, r3.Vector) {
	v := dir.Ortho()
	w := dir.Cross(v).Normalize()
	return v, w
}

// MinPathDistance is the shortest distance between two lattice points when
// travel is restricted to the 26 lattice directions.
func MinPathDistance(d r3.Vector) float64 {
	c := []float64{math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)}
	sort.Float64s(c)
	a, b, m := c[0], c[1], c[2]
	return a*sqrt3 + (b-a)*sqrt2 + (m - b)
}

func ClosestPointOnSegment(a, b, p r3.Vector) r3.Vector {
	ab := b.Sub(a)
	lenSq := ab.Norm2()
	if lenSq == 0 {
		return a
	}
	t := Clamp(p.Sub(a).Dot(ab)/lenSq, 0, 1)
	return a.Add(ab.Mul(t))
}

// BoundingSphere returns a sphere containing every point. The centre is the
// middle of the points' axis-aligned box.
func BoundingSphere(points []r3.Vector) (r3.Vector, float64) {
	if len(points) == 0 {
		return r3.Vector{}, 0
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = r3.Vector{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vector{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	centre := lo.Add(hi).Mul(0.5)
	radius := 0.0
	for _, p := range points {
		if d := p.Distance(centre); d > radius {
			radius = d
		}
	}
	return centre, radius
}

// Ahead reports whether target lies in front of origin along dir.
func Ahead(origin, dir, target r3.Vector) bool {
	return target.Sub(origin).Dot(dir) > 0
}

// hashQuantum is the resolution at which positions are hashed. Lattice
// positions are far coarser than this so nearby but distinct points land in
// distinct buckets most of the time.
const hashQuantum = 1.0 / 16

// HashPosition is a 64-bit spatial hash of p. Distinct positions can share a
// hash; callers must compare positions to resolve collisions.
func HashPosition(p r3.Vector) uint64 {
	x := uint64(int64(math.Round(p.X / hashQuantum)))
	y := uint64(int64(math.Round(p.Y / hashQuantum)))
	z := uint64(int64(math.Round(p.Z / hashQuantum)))
	h := x*73856093 ^ y*19349663 ^ z*83492791
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h
}

// SamePosition reports whether two positions fall in the same hash quantum.
func SamePosition(a, b r3.Vector) bool {
	return math.Round(a.X/hashQuantum) == math.Round(b.X/hashQuantum) &&
		math.Round(a.Y/hashQuantum) == math.Round(b.Y/hashQuantum) &&
		math.Round(a.Z/hashQuantum) == math.Round(b.Z/hashQuantum)
}
