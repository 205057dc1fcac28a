package pathfinding

import (
	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/world"
)

// Destination is a fixed world point, or a point in the frame of a moving
// entity when Entity is set.
type Destination struct {
	Entity world.EntityID
	Point  r3.Vector
}

func PointDestination(p r3.Vector) Destination {
	return Destination{Point: p}
}

func EntityDestination(id world.EntityID, offset r3.Vector) Destination {
	return Destination{Entity: id, Point: offset}
}

func (d Destination) Tracking() bool {
	return d.Entity != 0
}

// Resolve returns the current world position of the destination, and the
// entity it tracks. It fails when the tracked entity is gone.
func (d Destination) Resolve(q world.Query) (r3.Vector, world.Body, bool) {
	if !d.Tracking() {
		return d.Point, world.Body{}, true
	}
	b, ok := q.Entity(d.Entity)
	if !ok {
		return r3.Vector{}, world.Body{}, false
	}
	return b.Frame.ToWorld(d.Point), b, true
}

// Request is everything a caller can ask of the pathfinder through MoveTo.
type Request struct {
	// NavOffset is the navigation reference point in the agent's frame,
	// relative to its centre.
	NavOffset    r3.Vector
	Destination  Destination
	IgnoreEntity world.EntityID
	// IgnorePart excludes cells of one entity from obstruction tests.
	IgnorePart  *SubPart
	IgnoreVoxel bool
	// CanChangeCourse enables repulsion and lattice search. Without it the
	// pathfinder only searches along the straight line.
	CanChangeCourse bool
	AddToVelocity   r3.Vector
}

func (r Request) equal(o Request) bool {
	return r.NavOffset == o.NavOffset &&
		r.Destination == o.Destination &&
		r.IgnoreEntity == o.IgnoreEntity &&
		r.IgnorePart.equal(o.IgnorePart) &&
		r.IgnoreVoxel == o.IgnoreVoxel &&
		r.CanChangeCourse == o.CanChangeCourse &&
		r.AddToVelocity == o.AddToVelocity
}

// Move is the pathfinder's output for one tick.
type Move struct {
	Direction      r3.Vector
	Distance       float64
	TargetVelocity r3.Vector
	// Hold asks the mover to keep station relative to TargetVelocity.
	Hold bool
}

// Mover consumes moves. It is called with the pathfinder's lock held and
// must not call back into the pathfinder.
type Mover interface {
	Move(agent world.EntityID, m Move)
}

type MoverFunc func(agent world.EntityID, m Move)

func (f MoverFunc) Move(agent world.EntityID, m Move) {
	f(agent, m)
}

// Obstruction is the entity the current search or path is anchored to.
type Obstruction struct {
	Entity world.Body
	// MatchPosition makes the agent follow the obstruction's velocity.
	MatchPosition bool
}
