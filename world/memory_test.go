package world

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryAddAndBounds(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))

	id, err := m.Add(Spec{
		Kind:     KindBody,
		Frame:    Identity(r3.Vector{X: 10}),
		CellSize: 2,
		Cells:    BoxCells(Cell{X: -1, Y: -1, Z: -1}, Cell{X: 1, Y: 1, Z: 1}),
	})
	require.NoError(t, err)

	b, ok := m.Entity(id)
	require.True(t, ok)
	assert.True(t, b.Centre.ApproxEqual(r3.Vector{X: 10}))
	assert.True(t, b.CentreOfMass.ApproxEqual(r3.Vector{X: 10}))
	assert.InDelta(t, 2*math.Sqrt(3)+math.Sqrt(3), b.Radius, 1e-9)
	assert.Equal(t, 27.0, b.Mass)

	_, err = m.Add(Spec{ID: id, Kind: KindCharacter, Radius: 1})
	assert.Error(t, err, "duplicate id")

	_, err = m.Add(Spec{Kind: KindBody, CellSize: 1})
	assert.Error(t, err, "grid without cells")
}

func TestMemoryQueries(t *testing.T) {
	m := NewMemory(nil)

	ship, err := m.Add(Spec{Kind: KindBody, Frame: Identity(r3.Vector{}), CellSize: 1, Cells: BoxCells(Cell{}, Cell{X: 1})})
	require.NoError(t, err)
	far, err := m.Add(Spec{Kind: KindCharacter, Frame: Identity(r3.Vector{X: 500}), Radius: 2})
	require.NoError(t, err)
	rock, err := m.Add(Spec{Kind: KindTerrain, Frame: Identity(r3.Vector{X: 20}), CellSize: 4, Cells: BoxCells(Cell{X: -1, Y: -1, Z: -1}, Cell{X: 1, Y: 1, Z: 1})})
	require.NoError(t, err)

	near := m.EntitiesInSphere(r3.Vector{}, 30)
	ids := make([]EntityID, 0, len(near))
	for _, b := range near {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []EntityID{ship, rock}, ids)

	hit, ok := m.RaycastTerrain(r3.Vector{}, r3.Vector{X: 40})
	require.True(t, ok)
	assert.Equal(t, rock, hit.Entity)
	assert.InDelta(t, 14.0, hit.Point.X, 1e-9)

	_, ok = m.RaycastTerrain(r3.Vector{Y: 50}, r3.Vector{X: 40, Y: 50})
	assert.False(t, ok)

	m.Attach(ship, far)
	assert.Equal(t, []EntityID{far}, m.AttachedBodies(ship))
	assert.Equal(t, []EntityID{ship}, m.AttachedBodies(far))

	top, ok := m.TopmostEntityAt(r3.Vector{X: 21})
	require.True(t, ok)
	assert.Equal(t, rock, top.ID)

	require.True(t, m.Remove(far))
	assert.Empty(t, m.AttachedBodies(ship))
}

func TestMemoryStep(t *testing.T) {
	m := NewMemory(nil)
	id, err := m.Add(Spec{Kind: KindCharacter, Frame: Identity(r3.Vector{}), Radius: 1, Velocity: r3.Vector{X: 3}})
	require.NoError(t, err)
	wall, err := m.Add(Spec{Kind: KindBody, Frame: Identity(r3.Vector{}), CellSize: 1, Cells: []Cell{{}}, Velocity: r3.Vector{Y: 1}, Static: true})
	require.NoError(t, err)

	m.Step(0.5)

	b, _ := m.Entity(id)
	assert.True(t, b.Centre.ApproxEqual(r3.Vector{X: 1.5}))
	w, _ := m.Entity(wall)
	assert.True(t, w.Centre.ApproxEqual(r3.Vector{}), "static bodies do not move")
}

func TestSegmentBoxHit(t *testing.T) {
	lo := r3.Vector{X: 1, Y: -1, Z: -1}
	hi := r3.Vector{X: 3, Y: 1, Z: 1}
	cases := []struct {
		name  string
		from  r3.Vector
		d     r3.Vector
		hit   bool
		param float64
	}{
		{"straight", r3.Vector{}, r3.Vector{X: 4}, true, 0.25},
		{"short", r3.Vector{}, r3.Vector{X: 0.5}, false, 0},
		{"parallel_outside", r3.Vector{Y: 5}, r3.Vector{X: 4}, false, 0},
		{"inside", r3.Vector{X: 2}, r3.Vector{Z: 1}, true, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hit, param := segmentBoxHit(c.from, c.d, lo, hi)
			if hit != c.hit {
				t.Fatalf("hit = %v, want %v", hit, c.hit)
			}
			if hit && math.Abs(param-c.param) > 1e-9 {
				t.Fatalf("param = %v, want %v", param, c.param)
			}
		})
	}
}

func TestSegmentSphereHit(t *testing.T) {
	hit, param := segmentSphereHit(r3.Vector{}, r3.Vector{X: 10}, r3.Vector{X: 5}, 1)
	require.True(t, hit)
	assert.InDelta(t, 0.4, param, 1e-9)

	hit, _ = segmentSphereHit(r3.Vector{}, r3.Vector{X: 10}, r3.Vector{X: 5, Y: 3}, 1)
	assert.False(t, hit)
}
