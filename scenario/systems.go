package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
	"github.com/milk9111/autopilot/pathfinding"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

// ScriptSystem runs every motion script.
type ScriptSystem struct{}

func (ScriptSystem) Update(_ context.Context, sim *Simulator) error {
	var errs []error
	for _, ms := range sim.scripts {
		if err := ms.Update(sim.world, sim.tick); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NavigationSystem advances the session clock, which runs every pathfinder
// on the interactive pool, and waits for them.
type NavigationSystem struct{}

func (NavigationSystem) Update(ctx context.Context, sim *Simulator) error {
	if !sim.started {
		for _, a := range sim.agents {
			a.Pathfinder.MoveTo(a.request)
		}
		sim.started = true
	}
	sim.tick = sim.session.Advance()
	if err := sim.session.Settle(ctx); err != nil {
		return fmt.Errorf("scenario: tick %d: %w", sim.tick, err)
	}
	if err := sim.session.Err(); err != nil {
		return fmt.Errorf("scenario: tick %d: %w", sim.tick, err)
	}
	return nil
}

// KinematicSystem turns each pathfinder's last move into agent velocity.
type KinematicSystem struct{}

func (KinematicSystem) Update(_ context.Context, sim *Simulator) error {
	rate := float64(sim.cfg.Session.TickRate)
	for _, a := range sim.agents {
		body, ok := sim.world.Entity(a.Body)
		if !ok {
			continue
		}
		want := desiredVelocity(a.Pathfinder.LastMove(), a.spec.MaxSpeed, rate)
		k := a.spec.Response
		if k == 0 {
			k = 1
		}
		v := r3.Vector{
			X: common.Lerp(body.Velocity.X, want.X, k),
			Y: common.Lerp(body.Velocity.Y, want.Y, k),
			Z: common.Lerp(body.Velocity.Z, want.Z, k),
		}
		sim.world.SetVelocity(a.Body, v)
	}
	return nil
}

// desiredVelocity never asks for more than the distance left in one tick,
// and never for more than maxSpeed.
func desiredVelocity(m pathfinding.Move, maxSpeed, tickRate float64) r3.Vector {
	v := m.TargetVelocity
	if !m.Hold && m.Direction != (r3.Vector{}) {
		speed := math.Min(maxSpeed, m.Distance*tickRate)
		v = v.Add(m.Direction.Normalize().Mul(speed))
	}
	if n := v.Norm(); n > maxSpeed {
		v = v.Mul(maxSpeed / n)
	}
	return v
}

// PhysicsSystem lands pending jumps and integrates velocities.
type PhysicsSystem struct{}

func (PhysicsSystem) Update(_ context.Context, sim *Simulator) error {
	for _, a := range sim.agents {
		if a.drive != nil && a.drive.land(sim.world, a.Body) {
			sim.log.Info("jump landed",
				zap.String("agent", a.Name),
				zap.Uint64("tick", sim.tick))
		}
	}
	sim.world.Step(1 / float64(sim.cfg.Session.TickRate))
	return nil
}

// ArrivalSystem marks agents within their arrive distance.
type ArrivalSystem struct{}

func (ArrivalSystem) Update(_ context.Context, sim *Simulator) error {
	for _, a := range sim.agents {
		if a.arrived {
			continue
		}
		dist, ok := a.distance(sim.world)
		if !ok || dist > a.arriveDistance() {
			continue
		}
		a.arrived = true
		a.arrivedAt = sim.tick
		sim.log.Info("agent arrived",
			zap.String("agent", a.Name),
			zap.Uint64("tick", sim.tick),
			zap.Float64("distance", dist))
	}
	return nil
}

// jumpDrive is a charge-limited teleport. A requested jump lands on the
// next physics step.
type jumpDrive struct {
	mu      sync.Mutex
	charge  float64
	gravity bool
	target  r3.Vector
	pending bool
	jumps   int
	w       *world.Memory
}

func (d *jumpDrive) CanJump(world.EntityID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.charge > 0 && !d.pending
}

func (d *jumpDrive) InGravity(world.EntityID) bool {
	return d.gravity
}

func (d *jumpDrive) Charge(world.EntityID) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.charge
}

func (d *jumpDrive) RequestJump(id world.EntityID, target r3.Vector) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		return fmt.Errorf("scenario: jump already pending")
	}
	if !d.w.SetJumping(id, true) {
		return fmt.Errorf("scenario: entity %d is not in the world", id)
	}
	d.target = target
	d.pending = true
	return nil
}

func (d *jumpDrive) land(w *world.Memory, id world.EntityID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.pending = false
	b, ok := w.Entity(id)
	if !ok {
		return false
	}
	shift := d.target.Sub(b.Centre)
	w.SetPosition(id, b.Frame.Origin.Add(shift))
	w.SetJumping(id, false)
	d.charge = math.Max(0, d.charge-shift.Norm())
	d.jumps++
	return true
}

func (d *jumpDrive) count() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jumps
}
