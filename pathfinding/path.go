package pathfinding

import "github.com/golang/geo/r3"

// Path is a sequence of waypoints relative to the obstruction. The first
// waypoint is where the agent started the search, the last is the
// destination. Waypoints before the target index have been reached.
type Path struct {
	waypoints []r3.Vector
	target    int
	radiusSq  float64
}

func newPath(waypoints []r3.Vector, radiusSq float64) Path {
	return Path{waypoints: waypoints, target: 1, radiusSq: radiusSq}
}

func (p *Path) HasTarget() bool {
	return p.target > 0 && p.target < len(p.waypoints)
}

func (p *Path) Target() (r3.Vector, bool) {
	if !p.HasTarget() {
		return r3.Vector{}, false
	}
	return p.waypoints[p.target], true
}

// LastReached is the waypoint immediately before the target.
func (p *Path) LastReached() (r3.Vector, bool) {
	if !p.HasTarget() {
		return r3.Vector{}, false
	}
	return p.waypoints[p.target-1], true
}

// Advance marks the target reached and reports whether a target remains.
func (p *Path) Advance() bool {
	if p.HasTarget() {
		p.target++
	}
	return p.HasTarget()
}

// SetTarget skips ahead to waypoint i.
func (p *Path) SetTarget(i int) {
	if i > p.target && i < len(p.waypoints) {
		p.target = i
	}
}

func (p *Path) TargetIndex() int {
	return p.target
}

// RadiusSq is the squared distance at which a waypoint counts as reached.
func (p *Path) RadiusSq() float64 {
	return p.radiusSq
}

func (p *Path) Len() int {
	return len(p.waypoints)
}

func (p *Path) Waypoints() []r3.Vector {
	return append([]r3.Vector(nil), p.waypoints...)
}

func (p *Path) Clear() {
	p.waypoints = nil
	p.target = 0
	p.radiusSq = 0
}
