package pathfinding

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
)

// JumpDrive is implemented by the host's long-range transport.
type JumpDrive interface {
	CanJump(agent world.EntityID) bool
	InGravity(agent world.EntityID) bool
	// Charge is the longest jump currently available.
	Charge(agent world.EntityID) float64
	RequestJump(agent world.EntityID, target r3.Vector) error
}

// JumpPlanner decides whether and where to jump. It is not safe for
// concurrent use; the pathfinder calls it under its own lock.
type JumpPlanner struct {
	drive       JumpDrive
	query       world.Query
	nextAttempt uint64
}

func NewJumpPlanner(drive JumpDrive, q world.Query) *JumpPlanner {
	return &JumpPlanner{drive: drive, query: q}
}

// Ready reports whether the cooldown from the last attempt has elapsed.
func (jp *JumpPlanner) Ready(tick uint64) bool {
	return jp != nil && jp.drive != nil && tick >= jp.nextAttempt
}

// Try attempts a jump toward dest and returns the requested target. Every
// call starts the retry cooldown; a failed request starts the longer one.
func (jp *JumpPlanner) Try(tick uint64, cfg config.JumpConfig, tester *PathTester, entities []world.Body, agent world.Body, dest r3.Vector) (r3.Vector, error) {
	jp.nextAttempt = tick + cfg.RetryTicks

	if jp.drive.InGravity(agent.ID) {
		return r3.Vector{}, rejectJump(JumpInGravity)
	}
	if agent.Jumping {
		return r3.Vector{}, rejectJump(JumpAlreadyJumping)
	}
	for _, id := range jp.query.AttachedBodies(agent.ID) {
		b, ok := jp.query.Entity(id)
		if !ok {
			continue
		}
		if b.Static {
			return r3.Vector{}, rejectJump(JumpStaticGrid)
		}
		if b.Jumping {
			return r3.Vector{}, rejectJump(JumpAlreadyJumping)
		}
	}
	if dest.Norm() > cfg.WorldRadius {
		return r3.Vector{}, rejectJump(JumpDestOutsideWorld)
	}

	disp := dest.Sub(agent.Centre)
	dist := disp.Norm()
	if dist < cfg.MinDistance {
		return r3.Vector{}, rejectJump(JumpCannotJumpMin)
	}
	charge := jp.drive.Charge(agent.ID)
	if !jp.drive.CanJump(agent.ID) || charge < cfg.MinDistance {
		return r3.Vector{}, rejectJump(JumpNotCharged)
	}

	dir := disp.Mul(1 / dist)
	jumpDist := math.Min(dist, charge)
	if hit, ok := tester.TestSegment(entities, agent.Centre, agent.Centre.Add(dir.Mul(jumpDist)), true); ok {
		jumpDist = hit.Distance - 2*agent.Radius
		if jumpDist < cfg.MinDistance {
			return r3.Vector{}, rejectJump(JumpObstructed)
		}
	}

	target := agent.Centre.Add(dir.Mul(jumpDist))
	if err := jp.drive.RequestJump(agent.ID, target); err != nil {
		jp.nextAttempt = tick + cfg.FailTicks
		return r3.Vector{}, &JumpRejected{Reason: JumpFailed, Err: err}
	}
	return target, nil
}
