package world

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"
)

// Spec describes an entity to add to a Memory world.
type Spec struct {
	ID       EntityID
	Kind     Kind
	Frame    Frame
	CellSize float64
	Cells    []Cell
	// Radius is only used by characters; grid entities derive theirs from cells.
	Radius   float64
	Velocity r3.Vector
	Mass     float64
	Static   bool
}

type record struct {
	body  Body
	cells []Cell
	// local bounds, in frame units, recomputed only when cells change
	localCentre r3.Vector
	localCoM    r3.Vector
}

// Memory is an in-memory world. It is safe for concurrent use; queries
// return copies.
type Memory struct {
	mu       sync.RWMutex
	log      *zap.Logger
	entities map[EntityID]*record
	attached map[EntityID]map[EntityID]struct{}
	nextID   EntityID
}

func NewMemory(log *zap.Logger) *Memory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory{
		log:      log,
		entities: make(map[EntityID]*record),
		attached: make(map[EntityID]map[EntityID]struct{}),
		nextID:   1,
	}
}

// Add inserts an entity. A zero ID is assigned automatically.
func (m *Memory) Add(spec Spec) (EntityID, error) {
	if m == nil {
		return 0, fmt.Errorf("world: add to nil world")
	}
	if spec.Kind != KindCharacter && len(spec.Cells) == 0 {
		return 0, fmt.Errorf("world: %s entity needs occupied cells", spec.Kind)
	}
	if spec.Kind != KindCharacter && spec.CellSize <= 0 {
		return 0, fmt.Errorf("world: %s entity needs a positive cell size", spec.Kind)
	}
	if spec.Frame.X == (r3.Vector{}) {
		spec.Frame = Identity(spec.Frame.Origin)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := spec.ID
	if id == 0 {
		for m.entities[m.nextID] != nil {
			m.nextID++
		}
		id = m.nextID
		m.nextID++
	}
	if _, ok := m.entities[id]; ok {
		return 0, fmt.Errorf("world: entity %d already exists", id)
	}

	rec := &record{
		body: Body{
			ID:       id,
			Kind:     spec.Kind,
			Frame:    spec.Frame,
			CellSize: spec.CellSize,
			Radius:   spec.Radius,
			Velocity: spec.Velocity,
			Mass:     spec.Mass,
			Static:   spec.Static || spec.Kind == KindTerrain,
		},
		cells: append([]Cell(nil), spec.Cells...),
	}
	if rec.body.Mass <= 0 {
		rec.body.Mass = float64(len(rec.cells))
	}
	rec.computeBounds()
	m.entities[id] = rec

	m.log.Debug("entity added",
		zap.Uint64("entity", uint64(id)),
		zap.Stringer("kind", spec.Kind),
		zap.Int("cells", len(spec.Cells)),
		zap.Float64("radius", rec.body.Radius))
	return id, nil
}

func (r *record) computeBounds() {
	b := &r.body
	if b.Kind == KindCharacter || len(r.cells) == 0 {
		b.Centre = b.Frame.Origin
		b.CentreOfMass = b.Frame.Origin
		return
	}

	lo := r.cells[0].Vector()
	hi := lo
	sum := r3.Vector{}
	for _, c := range r.cells {
		v := c.Vector()
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
		sum = sum.Add(v)
	}
	r.localCentre = lo.Add(hi).Mul(0.5 * b.CellSize)
	r.localCoM = sum.Mul(b.CellSize / float64(len(r.cells)))

	radius := 0.0
	for _, c := range r.cells {
		if d := c.Vector().Mul(b.CellSize).Distance(r.localCentre); d > radius {
			radius = d
		}
	}
	b.Radius = radius + b.CellSize*math.Sqrt(3)/2
	r.place()
}

// place refreshes the world-space bounds after the frame moved.
func (r *record) place() {
	b := &r.body
	if b.Kind == KindCharacter {
		b.Centre = b.Frame.Origin
		b.CentreOfMass = b.Frame.Origin
		return
	}
	b.Centre = b.Frame.ToWorld(r.localCentre)
	b.CentreOfMass = b.Frame.ToWorld(r.localCoM)
}

func (m *Memory) Remove(id EntityID) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return false
	}
	delete(m.entities, id)
	for other := range m.attached[id] {
		delete(m.attached[other], id)
	}
	delete(m.attached, id)
	m.log.Debug("entity removed", zap.Uint64("entity", uint64(id)))
	return true
}

func (m *Memory) update(id EntityID, fn func(r *record)) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entities[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

func (m *Memory) SetVelocity(id EntityID, v r3.Vector) bool {
	return m.update(id, func(r *record) { r.body.Velocity = v })
}

// SetPosition moves the entity's frame origin.
func (m *Memory) SetPosition(id EntityID, origin r3.Vector) bool {
	return m.update(id, func(r *record) {
		r.body.Frame.Origin = origin
		r.place()
	})
}

func (m *Memory) SetFrame(id EntityID, f Frame) bool {
	return m.update(id, func(r *record) {
		r.body.Frame = f
		r.place()
	})
}

func (m *Memory) SetJumping(id EntityID, jumping bool) bool {
	return m.update(id, func(r *record) { r.body.Jumping = jumping })
}

// Attach records that a and b are rigidly connected.
func (m *Memory) Attach(a, b EntityID) {
	if m == nil || a == b {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range [2][2]EntityID{{a, b}, {b, a}} {
		set := m.attached[pair[0]]
		if set == nil {
			set = make(map[EntityID]struct{})
			m.attached[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

// Step integrates the velocity of every non-static entity over dt seconds.
func (m *Memory) Step(dt float64) {
	if m == nil || dt <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.entities {
		if rec.body.Static || rec.body.Velocity == (r3.Vector{}) {
			continue
		}
		rec.body.Frame.Origin = rec.body.Frame.Origin.Add(rec.body.Velocity.Mul(dt))
		rec.place()
	}
}

func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

func (m *Memory) Entity(id EntityID) (Body, bool) {
	if m == nil {
		return Body{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.entities[id]
	if !ok {
		return Body{}, false
	}
	return rec.body, true
}

// EntitiesInSphere returns every entity whose bounding sphere overlaps the
// query sphere, ordered by id.
func (m *Memory) EntitiesInSphere(centre r3.Vector, radius float64) []Body {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Body
	for _, rec := range m.entities {
		reach := radius + rec.body.Radius
		if rec.body.Centre.Sub(centre).Norm2() <= reach*reach {
			out = append(out, rec.body)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) OccupiedCells(id EntityID) []Cell {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.entities[id]
	if !ok {
		return nil
	}
	return append([]Cell(nil), rec.cells...)
}

func (m *Memory) AttachedBodies(id EntityID) []EntityID {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EntityID, 0, len(m.attached[id]))
	for other := range m.attached[id] {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RaycastTerrain returns the nearest terrain cell crossed by from->to.
func (m *Memory) RaycastTerrain(from, to r3.Vector) (Hit, bool) {
	if m == nil {
		return Hit{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := Hit{Fraction: math.Inf(1)}
	for _, rec := range m.entities {
		if rec.body.Kind != KindTerrain {
			continue
		}
		if hit, t := firstCellHit(rec.body, rec.cells, from, to); hit && t < best.Fraction {
			best = Hit{Entity: rec.body.ID, Fraction: t}
		}
	}
	if math.IsInf(best.Fraction, 1) {
		return Hit{}, false
	}
	best.Point = from.Add(to.Sub(from).Mul(best.Fraction))
	return best, true
}

func (m *Memory) TopmostEntityAt(point r3.Vector) (Body, bool) {
	if m == nil {
		return Body{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best Body
	found := false
	for _, rec := range m.entities {
		b := rec.body
		if b.Centre.Sub(point).Norm2() > b.Radius*b.Radius {
			continue
		}
		if !found || b.Radius > best.Radius || (b.Radius == best.Radius && b.ID < best.ID) {
			best = b
			found = true
		}
	}
	return best, found
}

var _ Query = (*Memory)(nil)
