package world

import (
	"fmt"

	"github.com/golang/geo/r3"
)

type EntityID uint64

// Kind classifies how an entity occupies space.
type Kind int

const (
	// KindBody is a rigid body built from a voxel grid.
	KindBody Kind = iota
	// KindTerrain is a static voxel volume.
	KindTerrain
	// KindCharacter is anything without a grid; it is treated as a sphere.
	KindCharacter
)

func (k Kind) String() string {
	switch k {
	case KindBody:
		return "body"
	case KindTerrain:
		return "terrain"
	case KindCharacter:
		return "character"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Cell is an integer coordinate in a body's local grid.
type Cell struct {
	X, Y, Z int
}

func (c Cell) Vector() r3.Vector {
	return r3.Vector{X: float64(c.X), Y: float64(c.Y), Z: float64(c.Z)}
}

// Body is a point-in-time snapshot of an entity.
type Body struct {
	ID           EntityID
	Kind         Kind
	Frame        Frame
	CellSize     float64
	Centre       r3.Vector
	Radius       float64
	CentreOfMass r3.Vector
	Velocity     r3.Vector
	Mass         float64
	Static       bool
	Jumping      bool
}

// CellCentre is the world position of a cell's centre.
func (b Body) CellCentre(c Cell) r3.Vector {
	return b.Frame.ToWorld(c.Vector().Mul(b.CellSize))
}

// Hit is the result of a terrain ray cast.
type Hit struct {
	Entity EntityID
	Point  r3.Vector
	// Fraction is the position of the hit along the ray, 0 at from and 1 at to.
	Fraction float64
}

// Query is the read-only view of the world used by navigation.
type Query interface {
	Entity(id EntityID) (Body, bool)
	EntitiesInSphere(centre r3.Vector, radius float64) []Body
	OccupiedCells(id EntityID) []Cell
	AttachedBodies(id EntityID) []EntityID
	RaycastTerrain(from, to r3.Vector) (Hit, bool)
	// TopmostEntityAt returns the largest entity whose volume contains point.
	TopmostEntityAt(point r3.Vector) (Body, bool)
}
