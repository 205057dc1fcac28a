package pathfinding

import (
	"container/heap"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
)

// Key is the spatial hash of a node position. Keys may collide; nodeMap
// resolves collisions by comparing positions.
type Key uint64

func KeyOf(p r3.Vector) Key {
	return Key(common.HashPosition(p))
}

// PathNode is an immutable search record. Positions are relative to the
// obstruction the search is anchored to. The parent is referenced by
// position, never by pointer, so frontiers stay independent.
type PathNode struct {
	Parent              r3.Vector
	HasParent           bool
	DistToCur           float64
	Position            r3.Vector
	DirectionFromParent r3.Vector
}

func (n PathNode) Key() Key {
	return KeyOf(n.Position)
}

func (n PathNode) ParentKey() (Key, bool) {
	if !n.HasParent {
		return 0, false
	}
	return KeyOf(n.Parent), true
}

func rootNode(p r3.Vector) PathNode {
	return PathNode{Position: p}
}

// childOf builds the node reached by moving from parent to p.
func childOf(parent PathNode, p r3.Vector) PathNode {
	disp := p.Sub(parent.Position)
	dist := disp.Norm()
	return PathNode{
		Parent:              parent.Position,
		HasParent:           true,
		DistToCur:           parent.DistToCur + dist,
		Position:            p,
		DirectionFromParent: disp.Mul(1 / dist),
	}
}

type nodeMap struct {
	buckets map[Key][]PathNode
	n       int
}

func newNodeMap() nodeMap {
	return nodeMap{buckets: make(map[Key][]PathNode)}
}

func (m *nodeMap) get(p r3.Vector) (PathNode, bool) {
	for _, n := range m.buckets[KeyOf(p)] {
		if common.SamePosition(n.Position, p) {
			return n, true
		}
	}
	return PathNode{}, false
}

func (m *nodeMap) has(p r3.Vector) bool {
	_, ok := m.get(p)
	return ok
}

// add stores n unless a node already occupies its position.
func (m *nodeMap) add(n PathNode) bool {
	k := n.Key()
	for _, other := range m.buckets[k] {
		if common.SamePosition(other.Position, n.Position) {
			return false
		}
	}
	m.buckets[k] = append(m.buckets[k], n)
	m.n++
	return true
}

func (m *nodeMap) len() int {
	return m.n
}

func (m *nodeMap) each(fn func(PathNode)) {
	for _, bucket := range m.buckets {
		for _, n := range bucket {
			fn(n)
		}
	}
}

func (m *nodeMap) clear() {
	clear(m.buckets)
	m.n = 0
}

type openItem struct {
	node     PathNode
	priority float64
	seq      uint64
	index    int
}

type openSet []*openItem

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].priority != o[j].priority {
		return o[i].priority < o[j].priority
	}
	return o[i].seq < o[j].seq
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	item := x.(*openItem)
	item.index = len(*o)
	*o = append(*o, item)
}
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*o = old[:n-1]
	return item
}

// worst returns the index of the item with the highest priority value.
func (o openSet) worst() int {
	idx := -1
	for i := range o {
		if idx < 0 || o.Less(idx, i) {
			idx = i
		}
	}
	return idx
}

var _ heap.Interface = (*openSet)(nil)
