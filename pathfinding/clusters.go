package pathfinding

import (
	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
)

// RepulseSphere pushes the agent away from an obstacle. FixedRadius covers
// the obstacle and agent sizes, VariableRadius grows with closing speed.
type RepulseSphere struct {
	Centre         r3.Vector
	FixedRadius    float64
	VariableRadius float64
}

func (s RepulseSphere) Radius() float64 {
	return s.FixedRadius + s.VariableRadius
}

// Repulsion is the displacement pushing p out of the sphere. It falls off
// linearly from the centre and is zero outside the sphere.
func (s RepulseSphere) Repulsion(p r3.Vector) r3.Vector {
	toCurrent := p.Sub(s.Centre)
	r := s.Radius()
	lenSq := toCurrent.Norm2()
	if lenSq > r*r {
		return r3.Vector{}
	}
	if lenSq == 0 {
		// no direction to push along; pick one
		return r3.Vector{X: r}
	}
	dist := toCurrent.Norm()
	return toCurrent.Mul((r - dist) / dist)
}

// SphereClusters groups repulsion spheres whose fixed parts touch, so that a
// hull sphere can close the gap between them.
type SphereClusters struct {
	Clusters [][]RepulseSphere
}

func (sc *SphereClusters) Add(sphere RepulseSphere) {
	if sc == nil {
		return
	}
	joined := -1
	for i := len(sc.Clusters) - 1; i >= 0; i-- {
		cluster := sc.Clusters[i]
		if len(cluster) == 0 {
			continue
		}
		for _, check := range cluster {
			radii := sphere.FixedRadius + check.FixedRadius
			if sphere.Centre.Sub(check.Centre).Norm2() > radii*radii {
				continue
			}
			if joined >= 0 {
				// sphere bridges two clusters
				sc.Clusters[joined] = append(sc.Clusters[joined], cluster...)
				sc.Clusters[i] = nil
			} else {
				joined = i
				sc.Clusters[i] = append(cluster, sphere)
			}
			break
		}
	}

	if joined < 0 {
		sc.Clusters = append(sc.Clusters, []RepulseSphere{sphere})
	}
	sc.compact()
}

func (sc *SphereClusters) compact() {
	out := sc.Clusters[:0]
	for _, c := range sc.Clusters {
		if len(c) != 0 {
			out = append(out, c)
		}
	}
	for i := len(out); i < len(sc.Clusters); i++ {
		sc.Clusters[i] = nil
	}
	sc.Clusters = out
}

// AddMiddleSpheres adds to every multi-member cluster a sphere enclosing the
// centres of its members.
func (sc *SphereClusters) AddMiddleSpheres() {
	if sc == nil {
		return
	}
	for i, cluster := range sc.Clusters {
		if len(cluster) < 2 {
			continue
		}
		points := make([]r3.Vector, len(cluster))
		for j, s := range cluster {
			points[j] = s.Centre
		}
		centre, radius := common.BoundingSphere(points)
		sc.Clusters[i] = append(cluster, RepulseSphere{Centre: centre, FixedRadius: radius})
	}
}

// Repulsion sums the repulsion of every sphere at p.
func (sc *SphereClusters) Repulsion(p r3.Vector) r3.Vector {
	var total r3.Vector
	if sc == nil {
		return total
	}
	for _, cluster := range sc.Clusters {
		for _, s := range cluster {
			total = total.Add(s.Repulsion(p))
		}
	}
	return total
}

func (sc *SphereClusters) Len() int {
	if sc == nil {
		return 0
	}
	n := 0
	for _, c := range sc.Clusters {
		n += len(c)
	}
	return n
}

func (sc *SphereClusters) Clear() {
	if sc == nil {
		return
	}
	sc.Clusters = sc.Clusters[:0]
}
