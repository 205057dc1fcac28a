package pathfinding

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
	"github.com/milk9111/autopilot/world"
)

// RotateChecker tests whether turning the agent about an axis would sweep
// it into something.
type RotateChecker struct {
	query    world.Query
	agent    world.EntityID
	throttle uint64

	checked    bool
	lastTick   uint64
	lastAxis   r3.Vector
	obstructed bool
	obstructor world.Body
}

func NewRotateChecker(q world.Query, agent world.EntityID, throttleTicks uint64) *RotateChecker {
	return &RotateChecker{query: q, agent: agent, throttle: throttleTicks}
}

// Obstruction returns the result of the last check.
func (rc *RotateChecker) Obstruction() (world.Body, bool) {
	if rc == nil {
		return world.Body{}, false
	}
	return rc.obstructor, rc.obstructed
}

// Test returns the first entity obstructing rotation about axis. Repeated
// calls with the same axis within the throttle window reuse the last result.
func (rc *RotateChecker) Test(tick uint64, axis r3.Vector) (world.Body, bool) {
	if rc == nil {
		return world.Body{}, false
	}
	axis = axis.Normalize()
	if rc.checked && tick-rc.lastTick < rc.throttle && axis.ApproxEqual(rc.lastAxis) {
		return rc.obstructor, rc.obstructed
	}
	rc.checked = true
	rc.lastTick = tick
	rc.lastAxis = axis
	rc.obstructor, rc.obstructed = rc.check(axis)
	return rc.obstructor, rc.obstructed
}

func (rc *RotateChecker) check(axis r3.Vector) (world.Body, bool) {
	agent, ok := rc.query.Entity(rc.agent)
	if !ok || axis == (r3.Vector{}) {
		return world.Body{}, false
	}
	com := agent.CentreOfMass

	height, radius := 0.0, 0.0
	for _, c := range rc.query.OccupiedCells(agent.ID) {
		along, rej := common.Reject(agent.CellCentre(c).Sub(com), axis)
		height = math.Max(height, math.Abs(along))
		radius = math.Max(radius, rej.Norm())
	}
	height += agent.CellSize
	radius += agent.CellSize
	sphereRadius := math.Max(radius, height) * math.Sqrt2

	ignore := map[world.EntityID]struct{}{agent.ID: {}}
	for _, id := range rc.query.AttachedBodies(agent.ID) {
		ignore[id] = struct{}{}
	}

	top := com.Add(axis.Mul(height))
	bottom := com.Sub(axis.Mul(height))

	for _, ent := range rc.query.EntitiesInSphere(com, sphereRadius) {
		if _, skip := ignore[ent.ID]; skip {
			continue
		}
		switch ent.Kind {
		case world.KindTerrain:
			if rc.terrainInSphere(ent, com, sphereRadius) {
				return ent, true
			}
		case world.KindBody:
			if rc.cellsInCylinder(ent, bottom, top, radius) {
				return ent, true
			}
		case world.KindCharacter:
			closest := common.ClosestPointOnSegment(bottom, top, ent.Centre)
			if closest.Distance(ent.Centre) <= radius+ent.Radius {
				return ent, true
			}
		default:
			return ent, true
		}
	}
	return world.Body{}, false
}

func (rc *RotateChecker) terrainInSphere(t world.Body, centre r3.Vector, radius float64) bool {
	reach := radius + t.CellSize*math.Sqrt(3)/2
	for _, c := range rc.query.OccupiedCells(t.ID) {
		if t.CellCentre(c).Sub(centre).Norm2() <= reach*reach {
			return true
		}
	}
	return false
}

// cellsInCylinder moves the sweep cylinder into ob's cell frame and checks
// every occupied cell against it.
func (rc *RotateChecker) cellsInCylinder(ob world.Body, bottom, top r3.Vector, radius float64) bool {
	scale := 1 / ob.CellSize
	a := ob.Frame.ToLocal(bottom).Mul(scale)
	b := ob.Frame.ToLocal(top).Mul(scale)
	r := radius*scale + 0.5
	for _, c := range rc.query.OccupiedCells(ob.ID) {
		if inCylinder(c.Vector(), a, b, r) {
			return true
		}
	}
	return false
}

func inCylinder(p, a, b r3.Vector, r float64) bool {
	ab := b.Sub(a)
	lenSq := ab.Norm2()
	if lenSq == 0 {
		return p.Sub(a).Norm2() <= r*r
	}
	t := p.Sub(a).Dot(ab) / lenSq
	if t < 0 || t > 1 {
		return false
	}
	return p.Sub(a.Add(ab.Mul(t))).Norm2() <= r*r
}
