package common

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestMinPathDistance(t *testing.T) {
	cases := []struct {
		name string
		d    r3.Vector
		want float64
	}{
		{"zero", r3.Vector{}, 0},
		{"axis", r3.Vector{X: 5}, 5},
		{"negative_axis", r3.Vector{Y: -4}, 4},
		{"face_diagonal", r3.Vector{X: 3, Y: 3}, 3 * math.Sqrt2},
		{"body_diagonal", r3.Vector{X: 2, Y: -2, Z: 2}, 2 * math.Sqrt(3)},
		{"mixed", r3.Vector{X: 1, Y: 2, Z: 4}, math.Sqrt(3) + math.Sqrt2 + 2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := MinPathDistance(c.d)
			if math.Abs(got-c.want) > 1e-9 {
				t.Fatalf("MinPathDistance(%v) = %v, want %v", c.d, got, c.want)
			}
			if got+1e-9 < c.d.Norm() {
				t.Fatalf("lattice distance %v shorter than euclidean %v", got, c.d.Norm())
			}
		})
	}
}

func TestSnapToLattice(t *testing.T) {
	ref := r3.Vector{X: 0.5, Y: -1, Z: 3}
	got := SnapToLattice(r3.Vector{X: 4.1, Y: 2.9, Z: 3.2}, ref, 2)
	want := r3.Vector{X: 4.5, Y: 3, Z: 3}
	if !got.ApproxEqual(want) {
		t.Fatalf("SnapToLattice = %v, want %v", got, want)
	}

	// Halving the step keeps every coarse lattice point on the finer lattice.
	coarse := SnapToLattice(r3.Vector{X: 17, Y: -9, Z: 40}, ref, 8)
	if fine := SnapToLattice(coarse, ref, 4); !fine.ApproxEqual(coarse) {
		t.Fatalf("coarse point %v moved to %v on finer lattice", coarse, fine)
	}
}

func TestRejectAndBasis(t *testing.T) {
	dir := r3.Vector{X: 1, Y: 1, Z: 0}.Normalize()
	proj, rej := Reject(r3.Vector{X: 2, Y: 0, Z: 3}, dir)
	if math.Abs(proj-math.Sqrt2) > 1e-9 {
		t.Fatalf("projection = %v", proj)
	}
	if math.Abs(rej.Dot(dir)) > 1e-9 {
		t.Fatalf("rejection %v not perpendicular to %v", rej, dir)
	}

	v, w := Basis(dir)
	for _, pair := range [][2]r3.Vector{{dir, v}, {dir, w}, {v, w}} {
		if math.Abs(pair[0].Dot(pair[1])) > 1e-9 {
			t.Fatalf("basis vectors %v and %v are not orthogonal", pair[0], pair[1])
		}
	}
	if !v.IsUnit() || !w.IsUnit() {
		t.Fatalf("basis vectors must be unit length: %v %v", v, w)
	}
}

func TestClosestPointOnSegment(t *testing.T) {
	a := r3.Vector{}
	b := r3.Vector{X: 10}
	cases := []struct {
		name string
		p    r3.Vector
		want r3.Vector
	}{
		{"middle", r3.Vector{X: 4, Y: 3}, r3.Vector{X: 4}},
		{"before", r3.Vector{X: -5, Y: 1}, a},
		{"after", r3.Vector{X: 50}, b},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ClosestPointOnSegment(a, b, c.p); !got.ApproxEqual(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
	if got := ClosestPointOnSegment(a, a, b); got != a {
		t.Fatalf("degenerate segment should return its start, got %v", got)
	}
}

func TestBoundingSphere(t *testing.T) {
	pts := []r3.Vector{{X: -2}, {X: 2}, {Y: 1}}
	c, r := BoundingSphere(pts)
	for _, p := range pts {
		if p.Distance(c) > r+1e-9 {
			t.Fatalf("point %v outside sphere %v r=%v", p, c, r)
		}
	}
	if _, r := BoundingSphere(nil); r != 0 {
		t.Fatalf("empty input should give zero radius")
	}
}

func TestHashPosition(t *testing.T) {
	a := r3.Vector{X: 128, Y: -64, Z: 2}
	if HashPosition(a) != HashPosition(r3.Vector{X: 128, Y: -64, Z: 2}) {
		t.Fatalf("hash must be deterministic")
	}
	if !SamePosition(a, r3.Vector{X: 128.001, Y: -64, Z: 2}) {
		t.Fatalf("positions within a quantum should compare equal")
	}
	if SamePosition(a, r3.Vector{X: 130, Y: -64, Z: 2}) {
		t.Fatalf("distinct lattice positions should not compare equal")
	}
}
