package scenario

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/pathfinding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSimulator(t *testing.T, sc *Scenario) *Simulator {
	t.Helper()
	sim, err := New(context.Background(), sc, config.Default(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sim.Close()) })
	return sim
}

func TestOpenScenarioArrives(t *testing.T) {
	sc, err := LoadEmbedded("open")
	require.NoError(t, err)
	sim := newSimulator(t, sc)

	res, err := sim.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, res.Agents, 1)

	scout := res.Agents[0]
	assert.Equal(t, "scout", scout.Name)
	assert.True(t, scout.Arrived)
	assert.LessOrEqual(t, scout.Distance, 1.0)
	assert.Equal(t, pathfinding.Unobstructed.String(), scout.State)
	assert.Empty(t, scout.Error)
	// 60 units at 20 per second and 60 ticks per second
	assert.InDelta(t, 178, float64(res.Ticks), 3)
	assert.Equal(t, res.Ticks, scout.ArrivedTick)
	assert.Equal(t, 1, res.Arrived())
	assert.Greater(t, res.Extents[2], 55.0, "extents follow the scout")
	assert.Less(t, res.Extents[0], res.Extents[2])

	out, err := res.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "arrived: true")
}

func TestJumpLandsNearDestination(t *testing.T) {
	sc, err := Parse([]byte(`
name: jump
ticks: 20
tick_rate: 60
world_radius: 10000
config:
  planner:
    jump:
      enabled: true
      min_distance: 50
      retry_ticks: 5
      fail_ticks: 50
bodies:
  - name: courier
    shape: {type: box, min: [-1, -1, -1], max: [1, 1, 1]}
agents:
  - body: courier
    destination: {point: [300, 0, 0]}
    can_change_course: true
    max_speed: 5
    jump_charge: 1000
`))
	require.NoError(t, err)
	sim := newSimulator(t, sc)

	res, err := sim.Run(context.Background(), 0)
	require.NoError(t, err)
	courier := res.Agents[0]
	assert.Equal(t, 1, courier.Jumps)
	assert.True(t, courier.Arrived)
	assert.LessOrEqual(t, courier.ArrivedTick, uint64(3))
}

func TestConvoyScriptsMoveBodies(t *testing.T) {
	sc, err := LoadEmbedded("convoy")
	require.NoError(t, err)
	sim := newSimulator(t, sc)

	lead, ok := sim.Entity("lead")
	require.True(t, ok)
	escort, _ := sim.Entity("escort")
	before, _ := sim.World().Entity(escort)

	res, err := sim.Run(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), res.Ticks)
	assert.Equal(t, uint64(30), sim.Tick())

	b, _ := sim.World().Entity(lead)
	assert.InDelta(t, 2, b.Frame.Origin.X, 1e-9, "4 units per second for half a second")

	after, _ := sim.World().Entity(escort)
	assert.Less(t, after.Centre.Distance(b.Centre), before.Centre.Distance(r3.Vector{}), "escort closes on the lead")

	sim.SetSettings(sim.Config().Planner)
	_, err = sim.Run(context.Background(), 5)
	require.NoError(t, err)
}

func TestRunHonoursContext(t *testing.T) {
	sc, err := LoadEmbedded("open")
	require.NoError(t, err)
	sim := newSimulator(t, sc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sim.Tick())
}

func TestNewRejectsInvalidScenario(t *testing.T) {
	sc, err := Parse([]byte(`name: broken`))
	require.NoError(t, err)
	_, err = New(context.Background(), sc, config.Default(), nil)
	assert.ErrorContains(t, err, "scenario: broken")
}

func TestDesiredVelocity(t *testing.T) {
	tests := []struct {
		name string
		move pathfinding.Move
		want r3.Vector
	}{
		{
			name: "full speed",
			move: pathfinding.Move{Direction: r3.Vector{X: 1}, Distance: 100},
			want: r3.Vector{X: 10},
		},
		{
			name: "slows for the last tick",
			move: pathfinding.Move{Direction: r3.Vector{Y: 1}, Distance: 0.05},
			want: r3.Vector{Y: 3},
		},
		{
			name: "hold keeps station",
			move: pathfinding.Move{Hold: true, Direction: r3.Vector{X: 1}, Distance: 100, TargetVelocity: r3.Vector{Z: 2}},
			want: r3.Vector{Z: 2},
		},
		{
			name: "capped with target velocity",
			move: pathfinding.Move{Direction: r3.Vector{X: 1}, Distance: 100, TargetVelocity: r3.Vector{X: 5}},
			want: r3.Vector{X: 10},
		},
		{
			name: "zero direction follows target",
			move: pathfinding.Move{TargetVelocity: r3.Vector{X: -4}},
			want: r3.Vector{X: -4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := desiredVelocity(tt.move, 10, 60); !got.ApproxEqual(tt.want) {
				t.Fatalf("desiredVelocity = %v, want %v", got, tt.want)
			}
		})
	}
}
