package pathfinding

import (
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/common"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

// neighbours are the 26 lattice directions, scaled by the node distance.
var neighbours = func() []r3.Vector {
	out := make([]r3.Vector, 0, 26)
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				out = append(out, r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}
	return out
}()

// initialNodeDistance picks the lattice spacing for a new search: no larger
// than the default, nor than half the gap being bridged.
func initialNodeDistance(s *config.Planner, span float64) float64 {
	nd := 2 * s.DefaultNodeDistance
	for nd > s.MinNodeDistance && (nd > s.DefaultNodeDistance || nd > span/2) {
		nd /= 2
	}
	return math.Max(nd, s.MinNodeDistance)
}

// findAPath starts or continues the search around the current obstruction.
// Frontiers are reused while the destination stays near their anchor.
func (p *Pathfinder) findAPath(s *config.Planner) {
	relStart := p.agent.Centre.Sub(p.obPos)
	relDest := p.destWorld.Sub(p.obPos)
	line := !p.req.CanChangeCourse

	switch {
	case p.State() == FailedToFindPath:
		spacing := initialNodeDistance(s, relStart.Distance(relDest))
		if p.failSpacing > 0 {
			spacing = math.Min(2*p.failSpacing, s.DefaultNodeDistance)
		}
		p.startSearch(relStart, relDest, spacing, line, s)
	case p.forward == nil || p.backward == nil || p.lineMode != line:
		p.startSearch(relStart, relDest, initialNodeDistance(s, relStart.Distance(relDest)), line, s)
	case p.backward.StartPosition.Distance(relDest) > s.AnchorTolerance:
		p.log.Debug("destination moved, restarting search")
		p.startSearch(relStart, relDest, initialNodeDistance(s, relStart.Distance(relDest)), line, s)
	}
	p.setState(SearchingForPath)
	p.queueSearch()
}

func (p *Pathfinder) startSearch(from, to r3.Vector, spacing float64, line bool, s *config.Planner) {
	p.forward = NewPathNodeSet("forward", from, spacing, s.MaxOpenNodes)
	p.backward = NewPathNodeSet("backward", to, spacing, s.MaxOpenNodes)
	p.lineMode = line
	p.log.Debug("search started",
		zap.Uint64("obstruction", uint64(p.obstruction.Entity.ID)),
		zap.Float64("spacing", spacing),
		zap.Bool("line", line))
}

func (p *Pathfinder) queueSearch() {
	if p.sched == nil || p.searchQueued.Swap(true) {
		return
	}
	if !p.sched.Background(p.continuePathfinding) {
		p.searchQueued.Store(false)
	}
}

// continuePathfinding is one background quantum of search. It requeues
// itself until the search ends or is interrupted.
func (p *Pathfinder) continuePathfinding() {
	p.searchQueued.Store(false)
	if p.halted.Load() || p.interrupt.Load() || p.State() != SearchingForPath {
		return
	}
	if !p.mu.TryLock() {
		p.queueSearch()
		return
	}
	more := false
	defer func() {
		if r := recover(); r != nil {
			p.crash(r)
			p.mu.Unlock()
			panic(r)
		}
		p.mu.Unlock()
		if more {
			p.queueSearch()
		}
	}()
	more = p.searchQuantum(p.settings.Load())
}

func (p *Pathfinder) searchQuantum(s *config.Planner) bool {
	if p.forward == nil || p.backward == nil || p.State() != SearchingForPath {
		return false
	}
	for i := 0; i < max(1, s.SearchQuantum); i++ {
		if p.interrupt.Load() || p.halted.Load() {
			return false
		}
		if p.searchStep(s) {
			return false
		}
	}
	return p.State() == SearchingForPath
}

// chooseSet returns the frontier to advance next and its opposite.
func (p *Pathfinder) chooseSet() (*PathNodeSet, *PathNodeSet) {
	if p.lineMode || p.forward.compare(p.backward) <= 0 {
		return p.forward, p.backward
	}
	return p.backward, p.forward
}

// searchStep pops one node and reports whether the search has ended.
func (p *Pathfinder) searchStep(s *config.Planner) bool {
	set, other := p.chooseSet()
	node, ok := set.Pop()
	if !ok {
		return p.outOfNodes(set, other, s)
	}

	if !node.HasParent {
		p.expandNode(set, other, node, s)
		return false
	}
	if set.HasReached(node.Position) {
		return false
	}
	if !p.canTravel(node.Parent, node.Position) {
		return false
	}
	set.AddReached(node)

	if p.lineMode {
		if p.canTravel(node.Position, other.StartPosition) {
			return p.join(set, node.Position, other.StartPosition, s)
		}
		p.expandLine(set, node)
		return false
	}

	if other.HasReached(node.Position) {
		return p.join(set, node.Position, node.Position, s)
	}
	if p.isBlueSky(node, s) {
		if p.canTravel(node.Position, other.StartPosition) {
			return p.join(set, node.Position, other.StartPosition, s)
		}
		for _, b := range other.BlueSky() {
			if p.canTravel(node.Position, b.Position) {
				return p.join(set, node.Position, b.Position, s)
			}
		}
		set.AddBlueSky(node)
		return false
	}

	if set.ReachedCount()%10 == 0 && set.OpenCount() > 100 && set.NodeDistance < s.DefaultNodeDistance {
		set.NodeDistance = math.Min(2*set.NodeDistance, s.DefaultNodeDistance)
		p.log.Debug("coarsening frontier", zap.String("set", set.Name), zap.Float64("spacing", set.NodeDistance))
	}
	p.expandNode(set, other, node, s)
	return false
}

// join builds the path through a node of set and a node of the other set.
func (p *Pathfinder) join(set *PathNodeSet, mine, theirs r3.Vector, s *config.Planner) bool {
	fwd, bwd := mine, theirs
	if set == p.backward {
		fwd, bwd = theirs, mine
	}
	if err := p.buildPath(fwd, bwd, true, s); err != nil {
		p.inconsistent(err, s)
	}
	return true
}

func (p *Pathfinder) expandNode(set, other *PathNodeSet, node PathNode, s *config.Planner) {
	if p.lineMode {
		p.expandLine(set, node)
		return
	}
	for _, n := range neighbours {
		p.createPathNode(set, other, node, n, s)
	}
}

// createPathNode pushes the lattice node next to parent in direction n.
// Reversals are dropped, near-straight continuations attach to the
// grandparent, and other turns are penalised.
func (p *Pathfinder) createPathNode(set, other *PathNodeSet, parent PathNode, n r3.Vector, s *config.Planner) {
	step := parent.Position.Add(n.Mul(set.NodeDistance))
	pos := common.SnapToLattice(step, p.backward.StartPosition, set.NodeDistance)
	// the forward root is off the lattice; never let snapping stretch a step
	if pos.Distance(parent.Position) > set.NodeDistance*math.Sqrt(3)+1e-9 {
		pos = step
	}
	if common.SamePosition(pos, parent.Position) || set.HasReached(pos) {
		return
	}
	child := childOf(parent, pos)

	penalty := 0.0
	if parent.HasParent {
		turn := child.DirectionFromParent.Dot(parent.DirectionFromParent)
		if turn < 0 {
			return
		}
		collapsed := false
		if turn > 0.99 {
			if gp, ok := set.Reached(parent.Parent); ok {
				alt := childOf(gp, pos)
				if !gp.HasParent || alt.DirectionFromParent.Dot(gp.DirectionFromParent) >= 0 {
					child = alt
					collapsed = true
				}
			}
		}
		if !collapsed {
			penalty = s.TurnPenalty * (1 - turn)
		}
	}

	priority := child.DistToCur + common.MinPathDistance(other.StartPosition.Sub(pos)) + penalty
	set.Push(child, priority)
}

// expandLine steps straight toward the destination.
func (p *Pathfinder) expandLine(set *PathNodeSet, node PathNode) {
	goal := p.backward.StartPosition
	remaining := goal.Distance(node.Position)
	if remaining == 0 {
		return
	}
	dir := node.DirectionFromParent
	if !node.HasParent {
		dir = goal.Sub(node.Position).Mul(1 / remaining)
	}
	step := math.Min(set.NodeDistance, remaining)
	child := childOf(node, node.Position.Add(dir.Mul(step)))
	set.Push(child, child.DistToCur)
}

// outOfNodes refines an exhausted frontier, or fails it once it is at the
// minimum spacing. It reports whether the search has ended.
func (p *Pathfinder) outOfNodes(set, other *PathNodeSet, s *config.Planner) bool {
	if set.NodeDistance > s.MinNodeDistance {
		set.NodeDistance = math.Max(set.NodeDistance/2, s.MinNodeDistance)
		p.log.Debug("refining frontier",
			zap.String("set", set.Name),
			zap.Float64("spacing", set.NodeDistance),
			zap.Int("reached", set.ReachedCount()))
		var reached []PathNode
		set.EachReached(func(n PathNode) { reached = append(reached, n) })
		for _, n := range reached {
			p.expandNode(set, other, n, s)
		}
		return false
	}

	set.markFailed()
	p.log.Debug("frontier exhausted", zap.String("set", set.Name), zap.Int("reached", set.ReachedCount()))
	switch {
	case p.lineMode:
		if p.forward.ReachedCount() > 1 {
			return p.justMove(s)
		}
	case set == p.backward && set.ReachedCount() <= 1:
		// nothing leaves the destination
	case p.forward.Failed() && p.backward.Failed():
		if p.forward.ReachedCount() > 1 && p.backward.ReachedCount() > 1 {
			return p.justMove(s)
		}
	default:
		return false
	}
	p.pathfindingFailed(ErrSearchExhausted, s)
	return true
}

// justMove settles for a partial path to the forward node whose travelled
// distance is closest to the fallback distance.
func (p *Pathfinder) justMove(s *config.Planner) bool {
	var best PathNode
	found := false
	p.forward.EachReached(func(n PathNode) {
		if !n.HasParent {
			return
		}
		if !found || math.Abs(n.DistToCur-s.FallbackDistance) < math.Abs(best.DistToCur-s.FallbackDistance) {
			best = n
			found = true
		}
	})
	if !found {
		p.pathfindingFailed(ErrSearchExhausted, s)
		return true
	}
	p.log.Debug("no full path, moving partway", zap.Float64("travel", best.DistToCur))
	if err := p.buildPath(best.Position, r3.Vector{}, false, s); err != nil {
		p.inconsistent(err, s)
	}
	return true
}

func (p *Pathfinder) pathfindingFailed(err error, s *config.Planner) {
	if p.forward != nil && p.backward != nil {
		p.failSpacing = math.Max(p.forward.NodeDistance, p.backward.NodeDistance)
	}
	p.waitUntil = p.tick() + s.FailBackoffTicks
	p.setState(FailedToFindPath)
	p.recordErr(err)
	p.log.Info("no path found",
		zap.Error(err),
		zap.Uint64("obstruction", uint64(p.obstruction.Entity.ID)),
		zap.Uint64("retry_at", p.waitUntil))
}

func (p *Pathfinder) inconsistent(err error, s *config.Planner) {
	p.log.Error("search graph inconsistent", zap.Error(err))
	p.path.Clear()
	p.pathfindingFailed(err, s)
}

// buildPath joins the forward chain ending at fwd with the backward chain
// starting at bwd. Without the backward part the path ends at fwd.
func (p *Pathfinder) buildPath(fwd, bwd r3.Vector, withBackward bool, s *config.Planner) error {
	waypoints, err := chain(p.forward, fwd)
	if err != nil {
		return err
	}
	slices.Reverse(waypoints)
	if withBackward {
		back, err := chain(p.backward, bwd)
		if err != nil {
			return err
		}
		if len(back) > 0 && common.SamePosition(back[0], waypoints[len(waypoints)-1]) {
			back = back[1:]
		}
		waypoints = append(waypoints, back...)
	}

	spacing := math.Min(p.forward.NodeDistance, p.backward.NodeDistance)
	p.path = newPath(waypoints, spacing*spacing*s.WaypointRadiusFactor)
	p.forward, p.backward = nil, nil
	p.failSpacing = 0
	p.setState(FollowingPath)
	p.setNextPathTarget()
	p.log.Debug("path found",
		zap.Int("waypoints", len(waypoints)),
		zap.Int("target", p.path.TargetIndex()),
		zap.Bool("partial", !withBackward))
	return nil
}

// chain walks parent links from p back to the root of set.
func chain(set *PathNodeSet, p r3.Vector) ([]r3.Vector, error) {
	n, ok := set.Reached(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s set has no node at %v", ErrInconsistentGraph, set.Name, p)
	}
	out := []r3.Vector{n.Position}
	for n.HasParent {
		parent := n.Parent
		if n, ok = set.Reached(parent); !ok {
			return nil, fmt.Errorf("%w: %s set lost parent %v", ErrInconsistentGraph, set.Name, parent)
		}
		out = append(out, n.Position)
		if len(out) > set.ReachedCount() {
			return nil, fmt.Errorf("%w: %s set has a parent cycle", ErrInconsistentGraph, set.Name)
		}
	}
	return out, nil
}

// setNextPathTarget targets the farthest waypoint the agent can reach in a
// straight line.
func (p *Pathfinder) setNextPathTarget() bool {
	if !p.path.HasTarget() {
		return false
	}
	for i := len(p.path.waypoints) - 1; i >= p.path.TargetIndex(); i-- {
		if p.canTravelWorld(p.agent.Centre, p.path.waypoints[i].Add(p.obPos)) {
			p.path.SetTarget(i)
			return true
		}
	}
	return false
}

// canTravel tests a segment given relative to the obstruction.
func (p *Pathfinder) canTravel(from, to r3.Vector) bool {
	return p.canTravelWorld(from.Add(p.obPos), to.Add(p.obPos))
}

func (p *Pathfinder) canTravelWorld(from, to r3.Vector) bool {
	if p.tester == nil {
		return false
	}
	_, hit := p.tester.TestSegment(p.entities, from, to, !p.req.IgnoreVoxel)
	return !hit
}

// isBlueSky reports whether nothing but ignored entities is near the node.
func (p *Pathfinder) isBlueSky(node PathNode, s *config.Planner) bool {
	centre := node.Position.Add(p.obPos)
	for _, ent := range p.query.EntitiesInSphere(centre, p.agent.Radius+s.BlueSkyPadding) {
		if !p.ignored(ent, s) {
			return false
		}
	}
	return true
}

func (p *Pathfinder) ignored(ent world.Body, s *config.Planner) bool {
	if ent.ID == p.agent.ID || ent.ID == p.req.IgnoreEntity {
		return true
	}
	if ent.Kind == world.KindTerrain {
		return p.req.IgnoreVoxel
	}
	if ent.Mass < s.MinObstacleMass {
		return true
	}
	return slices.Contains(p.query.AttachedBodies(p.agent.ID), ent.ID)
}
