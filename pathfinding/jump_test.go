package pathfinding

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDrive struct {
	gravity   bool
	charge    float64
	err       error
	requested []r3.Vector
}

func (d *fakeDrive) CanJump(world.EntityID) bool   { return d.charge > 0 }
func (d *fakeDrive) InGravity(world.EntityID) bool { return d.gravity }
func (d *fakeDrive) Charge(world.EntityID) float64 { return d.charge }
func (d *fakeDrive) RequestJump(_ world.EntityID, target r3.Vector) error {
	if d.err != nil {
		return d.err
	}
	d.requested = append(d.requested, target)
	return nil
}

func jumpConfig() config.JumpConfig {
	return config.JumpConfig{
		Enabled:     true,
		MinDistance: 100,
		RetryTicks:  10,
		FailTicks:   100,
		WorldRadius: 10000,
	}
}

func TestJumpPlannerRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(w *world.Memory, agent *world.Body, d *fakeDrive)
		dest  r3.Vector
		want  JumpReason
	}{
		{
			name:  "in gravity",
			setup: func(_ *world.Memory, _ *world.Body, d *fakeDrive) { d.gravity = true },
			dest:  r3.Vector{X: 500},
			want:  JumpInGravity,
		},
		{
			name:  "already jumping",
			setup: func(_ *world.Memory, a *world.Body, _ *fakeDrive) { a.Jumping = true },
			dest:  r3.Vector{X: 500},
			want:  JumpAlreadyJumping,
		},
		{
			name: "docked to a static grid",
			setup: func(w *world.Memory, a *world.Body, _ *fakeDrive) {
				spec := cube(r3.Vector{Y: -3})
				spec.Static = true
				id, err := w.Add(spec)
				if err != nil {
					panic(err)
				}
				w.Attach(a.ID, id)
			},
			dest: r3.Vector{X: 500},
			want: JumpStaticGrid,
		},
		{
			name: "outside world",
			dest: r3.Vector{X: 20000},
			want: JumpDestOutsideWorld,
		},
		{
			name: "too close",
			dest: r3.Vector{X: 50},
			want: JumpCannotJumpMin,
		},
		{
			name:  "not charged",
			setup: func(_ *world.Memory, _ *world.Body, d *fakeDrive) { d.charge = 50 },
			dest:  r3.Vector{X: 500},
			want:  JumpNotCharged,
		},
		{
			name: "wall in the way",
			setup: func(w *world.Memory, _ *world.Body, _ *fakeDrive) {
				if _, err := w.Add(world.Spec{
					Kind:     world.KindBody,
					Frame:    world.Identity(r3.Vector{}),
					CellSize: 1,
					Cells:    world.WallCells(60, -5, 5, -5, 5),
				}); err != nil {
					panic(err)
				}
			},
			dest: r3.Vector{X: 500},
			want: JumpObstructed,
		},
		{
			name:  "drive refuses",
			setup: func(_ *world.Memory, _ *world.Body, d *fakeDrive) { d.err = errors.New("capacitors offline") },
			dest:  r3.Vector{X: 500},
			want:  JumpFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := world.NewMemory(nil)
			id := addEntity(t, w, cube(r3.Vector{}))
			agent, _ := w.Entity(id)
			drive := &fakeDrive{charge: 1000}
			if tt.setup != nil {
				tt.setup(w, &agent, drive)
			}

			jp := NewJumpPlanner(drive, w)
			tester := NewPathTester(w, agent, 2.5)
			_, err := jp.Try(0, jumpConfig(), tester, w.EntitiesInSphere(agent.Centre, 1000), agent, tt.dest)

			var rejected *JumpRejected
			if !errors.As(err, &rejected) {
				t.Fatalf("Try error = %v, want a JumpRejected", err)
			}
			if rejected.Reason != tt.want {
				t.Fatalf("reason = %s, want %s", rejected.Reason, tt.want)
			}
			if len(drive.requested) != 0 {
				t.Fatalf("jump requested despite rejection: %v", drive.requested)
			}
		})
	}
}

func TestJumpPlannerCooldowns(t *testing.T) {
	w := world.NewMemory(nil)
	id := addEntity(t, w, cube(r3.Vector{}))
	agent, _ := w.Entity(id)
	drive := &fakeDrive{charge: 1000}
	jp := NewJumpPlanner(drive, w)
	tester := NewPathTester(w, agent, 2.5)
	cfg := jumpConfig()

	require.True(t, jp.Ready(0))
	target, err := jp.Try(0, cfg, tester, nil, agent, r3.Vector{X: 500})
	require.NoError(t, err)
	assert.True(t, target.ApproxEqual(r3.Vector{X: 500}))
	assert.Len(t, drive.requested, 1)
	assert.False(t, jp.Ready(5))
	assert.True(t, jp.Ready(10))

	drive.err = errors.New("interdicted")
	_, err = jp.Try(10, cfg, tester, nil, agent, r3.Vector{X: 500})
	require.Error(t, err)
	assert.ErrorContains(t, err, "interdicted")
	assert.False(t, jp.Ready(20), "a failed jump waits longer")
	assert.True(t, jp.Ready(110))

	var nilPlanner *JumpPlanner
	assert.False(t, nilPlanner.Ready(0))
}

func TestJumpChargeLimitsDistance(t *testing.T) {
	w := world.NewMemory(nil)
	id := addEntity(t, w, cube(r3.Vector{}))
	agent, _ := w.Entity(id)
	drive := &fakeDrive{charge: 300}
	jp := NewJumpPlanner(drive, w)

	target, err := jp.Try(0, jumpConfig(), NewPathTester(w, agent, 2.5), nil, agent, r3.Vector{Y: 800})
	require.NoError(t, err)
	assert.True(t, target.ApproxEqual(r3.Vector{Y: 300}))
}
