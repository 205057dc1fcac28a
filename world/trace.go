package world

import (
	"math"

	"github.com/golang/geo/r3"
)

// segmentBoxHit is a slab test of the segment from + t*d, t in [0,1],
// against an axis-aligned box in the same space.
func segmentBoxHit(from, d, lo, hi r3.Vector) (bool, float64) {
	tmin := 0.0
	tmax := 1.0

	axes := [3][4]float64{
		{from.X, d.X, lo.X, hi.X},
		{from.Y, d.Y, lo.Y, hi.Y},
		{from.Z, d.Z, lo.Z, hi.Z},
	}
	for _, a := range axes {
		o, dir, minV, maxV := a[0], a[1], a[2], a[3]
		if dir != 0 {
			invD := 1.0 / dir
			t1 := (minV - o) * invD
			t2 := (maxV - o) * invD
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			tmin = math.Max(tmin, t1)
			tmax = math.Min(tmax, t2)
		} else if o < minV || o > maxV {
			return false, 0
		}
	}

	if tmax >= tmin {
		return true, tmin
	}
	return false, 0
}

// segmentSphereHit returns the first parameter in [0,1] at which the segment
// enters the sphere. A segment starting inside the sphere hits at 0.
func segmentSphereHit(from, to, centre r3.Vector, r float64) (bool, float64) {
	if r <= 0 {
		return false, 0
	}
	d := to.Sub(from)
	f := from.Sub(centre)

	c := f.Norm2() - r*r
	if c <= 0 {
		return true, 0
	}

	a := d.Norm2()
	b := 2 * f.Dot(d)
	disc := b*b - 4*a*c
	if disc < 0 || a == 0 {
		return false, 0
	}

	sqrtDisc := math.Sqrt(disc)
	t1 := (-b - sqrtDisc) / (2 * a)
	t2 := (-b + sqrtDisc) / (2 * a)

	t := math.Inf(1)
	if t1 >= 0 && t1 <= 1 {
		t = t1
	}
	if t2 >= 0 && t2 <= 1 && t2 < t {
		t = t2
	}
	if !math.IsInf(t, 1) {
		return true, t
	}
	return false, 0
}

// firstCellHit casts from->to through the occupied cells of b and returns the
// smallest hit parameter.
func firstCellHit(b Body, cells []Cell, from, to r3.Vector) (bool, float64) {
	if hit, _ := segmentSphereHit(from, to, b.Centre, b.Radius); !hit {
		return false, 0
	}

	// Work in cell units of the body's frame so every cell is a unit box.
	scale := 1.0 / b.CellSize
	lf := b.Frame.ToLocal(from).Mul(scale)
	lt := b.Frame.ToLocal(to).Mul(scale)
	d := lt.Sub(lf)

	closest := 1.0
	hasHit := false
	half := r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}
	for _, c := range cells {
		cv := c.Vector()
		if hit, t := segmentBoxHit(lf, d, cv.Sub(half), cv.Add(half)); hit && (!hasHit || t < closest) {
			closest = t
			hasHit = true
		}
	}
	return hasHit, closest
}
