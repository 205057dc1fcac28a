package pathfinding

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

// collectEntities gathers everything that may affect the agent this tick.
// The search radius grows with the agent's speed.
func (p *Pathfinder) collectEntities(s *config.Planner) {
	radius := p.agent.Radius + p.agent.Velocity.Norm()*s.SpeedFactor + s.EntitySearchDistance

	skip := map[world.EntityID]struct{}{p.agent.ID: {}}
	if p.req.IgnoreEntity != 0 {
		skip[p.req.IgnoreEntity] = struct{}{}
	}
	for _, id := range p.query.AttachedBodies(p.agent.ID) {
		skip[id] = struct{}{}
	}

	p.entities = p.entities[:0]
	for _, ent := range p.query.EntitiesInSphere(p.navPos, radius) {
		if _, ok := skip[ent.ID]; ok {
			continue
		}
		if ent.Kind == world.KindTerrain {
			if p.req.IgnoreVoxel {
				continue
			}
		} else if ent.Mass < s.MinObstacleMass {
			continue
		}
		p.entities = append(p.entities, ent)
	}
}

// calcRepulsion sorts nearby entities into those close enough to test for
// obstruction and those that only push the agent away. When calc is false
// no repulsion is produced but the avoid list is still built.
func (p *Pathfinder) calcRepulsion(calc bool, s *config.Planner) r3.Vector {
	p.avoid = p.avoid[:0]
	p.checkVoxel = false
	p.clusters.Clear()

	distToDest := p.navPos.Distance(p.destWorld)
	for _, ent := range p.entities {
		toCentre := ent.Centre.Sub(p.navPos)
		dist := toCentre.Norm()

		closing := 0.0
		if dist > 0 {
			closing = p.agent.Velocity.Sub(ent.Velocity).Dot(toCentre.Mul(1 / dist))
		}
		movingAway := closing < 0
		if closing < 0 {
			closing = 0
		}
		closing *= s.SpeedFactor

		base := p.agent.Radius + ent.Radius
		hard := base + closing
		if dist < hard {
			p.avoidEntity(ent)
			continue
		}

		reach := math.Min(hard*s.RepulseScale, hard+s.RepulseReach)
		if centreToDestSq := ent.Centre.Sub(p.destWorld).Norm2(); centreToDestSq < reach*reach {
			// the destination is inside the repulsion field; pushing away
			// would keep the agent from arriving
			if distToDest < dist {
				p.avoidEntity(ent)
				continue
			}
			minGain := 10.0
			if ent.Radius > 100 {
				minGain = ent.Radius * 0.1
			}
			if centreToDestSq < minGain*minGain {
				p.avoidEntity(ent)
				continue
			}
		}

		if calc && !movingAway {
			fixed := math.Min(base*s.RepulseScale, base+s.RepulseReach)
			p.clusters.Add(RepulseSphere{
				Centre:         ent.Centre,
				FixedRadius:    fixed,
				VariableRadius: math.Max(0, reach-fixed),
			})
		}
	}

	if !calc || p.clusters.Len() == 0 {
		return r3.Vector{}
	}
	p.clusters.AddMiddleSpheres()
	return p.clusters.Repulsion(p.navPos)
}

func (p *Pathfinder) avoidEntity(ent world.Body) {
	if ent.Kind == world.KindTerrain {
		p.checkVoxel = true
		return
	}
	p.avoid = append(p.avoid, ent)
}

// currentObstructed tests the heading for this tick against the avoid list.
// The destination entity is tested first so that a blocking destination
// becomes the obstruction.
func (p *Pathfinder) currentObstructed(dir r3.Vector, dist float64, s *config.Planner) (Hit, bool) {
	if dist <= 0 || dir == (r3.Vector{}) {
		return Hit{}, false
	}
	start := p.agent.Centre
	end := start.Add(dir.Mul(dist))

	rest := p.avoid
	if p.req.Destination.Tracking() {
		rest = make([]world.Body, 0, len(p.avoid))
		for _, ent := range p.avoid {
			if ent.ID != p.destBody.ID {
				rest = append(rest, ent)
				continue
			}
			if d, ok := p.tester.ObstructedBy(ent, start, dir, dist); ok {
				return Hit{Entity: ent, Distance: d}, true
			}
		}
	}

	if p.checkVoxel {
		ray := p.agent.Velocity.Mul(s.SpeedFactor).Add(dir.Mul(s.VoxelAdd))
		if length := ray.Norm(); length > 0 {
			if h, ok := p.tester.TerrainObstructed(start, ray.Mul(1/length), length); ok {
				body, _ := p.query.Entity(h.Entity)
				return Hit{Entity: body, Terrain: true, Distance: h.Fraction * length}, true
			}
		}
	}

	return p.tester.TestSegment(rest, start, end, false)
}

// tryRepairPath steers back onto the segment between the last reached
// waypoint and the target, or skips ahead to a waypoint in sight. It reports
// whether the tick was handled.
func (p *Pathfinder) tryRepairPath(s *config.Planner) bool {
	last, ok := p.path.LastReached()
	if !ok {
		return false
	}
	target, _ := p.path.Target()
	onLine := common.ClosestPointOnSegment(last.Add(p.obPos), target.Add(p.obPos), p.agent.Centre)
	disp := onLine.Sub(p.agent.Centre)
	if disp.Norm2() <= s.HoldDistance*s.HoldDistance {
		return false
	}
	if !p.canTravelWorld(p.agent.Centre, onLine) {
		if !p.setNextPathTarget() {
			return false
		}
		wp, _ := p.path.Target()
		disp = wp.Add(p.obPos).Sub(p.agent.Centre)
		if disp.Norm2() == 0 {
			return false
		}
	}
	p.log.Debug("repairing path", zap.Float64("offset", disp.Norm()))
	dist := disp.Norm()
	p.publish(Move{Direction: disp.Mul(1 / dist), Distance: dist, TargetVelocity: p.targetVelocity(true)})
	return true
}
