package pathfinding

import (
	"container/heap"

	"github.com/golang/geo/r3"
)

// PathNodeSet is one frontier of the bidirectional search.
type PathNodeSet struct {
	Name          string
	StartPosition r3.Vector
	NodeDistance  float64

	open    openSet
	reached nodeMap
	blueSky []PathNode
	failed  bool
	seq     uint64
	maxOpen int
}

func NewPathNodeSet(name string, start r3.Vector, nodeDistance float64, maxOpen int) *PathNodeSet {
	s := &PathNodeSet{
		Name:          name,
		StartPosition: start,
		NodeDistance:  nodeDistance,
		reached:       newNodeMap(),
		maxOpen:       maxOpen,
	}
	root := rootNode(start)
	s.reached.add(root)
	s.Push(root, 0)
	return s
}

// Push adds a node to the open list. When the list is full the worst entry
// is dropped, which may be n itself.
func (s *PathNodeSet) Push(n PathNode, priority float64) {
	s.seq++
	heap.Push(&s.open, &openItem{node: n, priority: priority, seq: s.seq})
	if s.maxOpen > 0 && len(s.open) > s.maxOpen {
		heap.Remove(&s.open, s.open.worst())
	}
}

func (s *PathNodeSet) Pop() (PathNode, bool) {
	if len(s.open) == 0 {
		return PathNode{}, false
	}
	item := heap.Pop(&s.open).(*openItem)
	return item.node, true
}

func (s *PathNodeSet) OpenCount() int {
	return len(s.open)
}

func (s *PathNodeSet) ReachedCount() int {
	return s.reached.len()
}

func (s *PathNodeSet) Reached(p r3.Vector) (PathNode, bool) {
	return s.reached.get(p)
}

func (s *PathNodeSet) HasReached(p r3.Vector) bool {
	return s.reached.has(p)
}

func (s *PathNodeSet) AddReached(n PathNode) bool {
	return s.reached.add(n)
}

// EachReached visits reached nodes in no particular order.
func (s *PathNodeSet) EachReached(fn func(PathNode)) {
	s.reached.each(fn)
}

func (s *PathNodeSet) BlueSky() []PathNode {
	return s.blueSky
}

func (s *PathNodeSet) AddBlueSky(n PathNode) {
	s.blueSky = append(s.blueSky, n)
}

func (s *PathNodeSet) Failed() bool {
	return s.failed
}

func (s *PathNodeSet) markFailed() {
	s.failed = true
}

// compare orders frontiers by how much they deserve the next expansion:
// failed sets last, then fewer blue-sky nodes, then fewer reached nodes.
func (s *PathNodeSet) compare(other *PathNodeSet) int {
	if s.failed != other.failed {
		if s.failed {
			return 1
		}
		return -1
	}
	if d := len(s.blueSky) - len(other.blueSky); d != 0 {
		return d
	}
	return s.reached.len() - other.reached.len()
}
