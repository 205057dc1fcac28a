package pathfinding

import (
	"math"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/autopilot/common"
	"github.com/milk9111/autopilot/world"
)

// Hit describes the first obstruction found along a segment.
type Hit struct {
	Entity   world.Body
	Terrain  bool
	Distance float64
}

// SubPart excludes some cells of one entity from obstruction tests, for
// example a docking port the agent is meant to touch.
type SubPart struct {
	Entity world.EntityID
	Cells  []world.Cell
}

// equal compares by contents, so callers may rebuild the same SubPart on
// every tick. A nil SubPart equals one with no entity and no cells.
func (sp *SubPart) equal(o *SubPart) bool {
	var a, b SubPart
	if sp != nil {
		a = *sp
	}
	if o != nil {
		b = *o
	}
	return a.Entity == b.Entity && slices.Equal(a.Cells, b.Cells)
}

func (sp *SubPart) excludes(id world.EntityID, c world.Cell) bool {
	if sp == nil || sp.Entity != id {
		return false
	}
	for _, ex := range sp.Cells {
		if ex == c {
			return true
		}
	}
	return false
}

type planeCell struct {
	X, Y int
}

// projection is the agent footprint seen along a travel direction.
type projection struct {
	cells    map[planeCell]struct{}
	bounds   cp.BB
	min, max float64
}

// PathTester decides whether the agent can travel a straight segment.
type PathTester struct {
	query        world.Query
	agent        world.Body
	agentCells   []world.Cell
	startRayCast float64
	ignore       *SubPart
}

func NewPathTester(q world.Query, agent world.Body, startRayCast float64) *PathTester {
	return &PathTester{
		query:        q,
		agent:        agent,
		agentCells:   q.OccupiedCells(agent.ID),
		startRayCast: startRayCast,
	}
}

// Ignore excludes a sub-part of another entity. Nil clears it.
func (pt *PathTester) Ignore(sp *SubPart) {
	pt.ignore = sp
}

func (pt *PathTester) Agent() world.Body {
	return pt.agent
}

func toPlane(p cp.Vector, roundTo float64) planeCell {
	return planeCell{X: int(math.Round(p.X / roundTo)), Y: int(math.Round(p.Y / roundTo))}
}

func (pt *PathTester) project(dir, v, w r3.Vector, roundTo float64) projection {
	proj := projection{
		cells: make(map[planeCell]struct{}, len(pt.agentCells)),
		min:   math.Inf(1),
		max:   math.Inf(-1),
	}
	first := true
	for _, c := range pt.agentCells {
		rel := pt.agent.CellCentre(c).Sub(pt.agent.Centre)
		dist, rej := common.Reject(rel, dir)
		proj.min = math.Min(proj.min, dist)
		proj.max = math.Max(proj.max, dist)

		pc := toPlane(cp.Vector{X: rej.Dot(v), Y: rej.Dot(w)}, roundTo)
		proj.cells[pc] = struct{}{}
		pv := cp.Vector{X: float64(pc.X), Y: float64(pc.Y)}
		if first {
			proj.bounds = cp.BB{L: pv.X, B: pv.Y, R: pv.X, T: pv.Y}
			first = false
		} else {
			proj.bounds = proj.bounds.Expand(pv)
		}
	}
	if first {
		// no cells known for the agent, treat it as a single cell at its centre
		proj.cells[planeCell{}] = struct{}{}
		proj.min, proj.max = 0, 0
	}
	return proj
}

// ObstructedBy reports whether moving the agent's centre from start along
// dir for length would collide with ob, and how far along dir the hit is.
func (pt *PathTester) ObstructedBy(ob world.Body, start, dir r3.Vector, length float64) (float64, bool) {
	switch ob.Kind {
	case world.KindBody:
		return pt.rejectionIntersects(ob, start, dir, length)
	case world.KindCharacter:
		return pt.sphereIntersects(ob, start, dir, length)
	default:
		// terrain is handled by ray casting
		return 0, false
	}
}

func (pt *PathTester) sphereIntersects(ob world.Body, start, dir r3.Vector, length float64) (float64, bool) {
	if !common.Ahead(start, dir, ob.Centre) {
		return 0, false
	}
	end := start.Add(dir.Mul(length))
	closest := common.ClosestPointOnSegment(start, end, ob.Centre)
	if closest.Distance(ob.Centre)-pt.agent.Radius-ob.Radius > 0 {
		return 0, false
	}
	return ob.Centre.Sub(start).Dot(dir), true
}

func (pt *PathTester) rejectionIntersects(ob world.Body, start, dir r3.Vector, length float64) (float64, bool) {
	agentSize := pt.agent.CellSize
	if agentSize <= 0 {
		agentSize = ob.CellSize
	}
	roundTo := math.Min(agentSize, ob.CellSize)
	minDistSq := 1
	if agentSize != ob.CellSize {
		steps := int(math.Ceil(math.Max(agentSize, ob.CellSize) / roundTo))
		minDistSq = steps * steps
	}
	reach := int(math.Ceil(math.Sqrt(float64(minDistSq))))

	v, w := common.Basis(dir)
	proj := pt.project(dir, v, w, roundTo)
	minProj := proj.min + pt.startRayCast
	maxProj := proj.max + length
	bounds := proj.bounds
	margin := float64(reach)
	bounds = cp.BB{L: bounds.L - margin, B: bounds.B - margin, R: bounds.R + margin, T: bounds.T + margin}

	tested := make(map[planeCell]struct{})
	for _, c := range pt.query.OccupiedCells(ob.ID) {
		if pt.ignore.excludes(ob.ID, c) {
			continue
		}
		rel := ob.CellCentre(c).Sub(start)
		dist, rej := common.Reject(rel, dir)
		if dist < minProj || dist > maxProj {
			continue
		}
		pv := cp.Vector{X: rej.Dot(v), Y: rej.Dot(w)}
		pc := toPlane(pv, roundTo)
		if _, seen := tested[pc]; seen {
			continue
		}
		tested[pc] = struct{}{}
		if !bounds.ContainsVect(cp.Vector{X: float64(pc.X), Y: float64(pc.Y)}) {
			continue
		}

		for dx := -reach; dx <= reach; dx++ {
			for dy := -reach; dy <= reach; dy++ {
				if dx*dx+dy*dy > minDistSq {
					continue
				}
				if _, ok := proj.cells[planeCell{X: pc.X + dx, Y: pc.Y + dy}]; !ok {
					continue
				}
				return dist, true
			}
		}
	}
	return 0, false
}

// TerrainObstructed casts rays along the segment from the agent's centre and
// from four points on its bounding radius.
func (pt *PathTester) TerrainObstructed(start, dir r3.Vector, length float64) (world.Hit, bool) {
	if length < 1 {
		return world.Hit{}, false
	}
	v, w := common.Basis(dir)
	r := pt.agent.Radius
	offsets := []r3.Vector{{}, v.Mul(r), v.Mul(-r), w.Mul(r), w.Mul(-r)}

	startOffset := 0.0
	if length > pt.startRayCast {
		startOffset = pt.startRayCast
	}
	var best world.Hit
	bestDist := math.Inf(1)
	for _, off := range offsets {
		from := start.Add(off).Add(dir.Mul(startOffset))
		to := start.Add(off).Add(dir.Mul(length))
		hit, ok := pt.query.RaycastTerrain(from, to)
		if !ok {
			continue
		}
		if dist := hit.Point.Sub(start.Add(off)).Dot(dir); dist < bestDist {
			best = hit
			bestDist = dist
		}
	}
	if math.IsInf(bestDist, 1) {
		return world.Hit{}, false
	}
	best.Fraction = bestDist / length
	return best, true
}

// TestSegment checks entities in order, then terrain, and returns the first
// obstruction.
func (pt *PathTester) TestSegment(entities []world.Body, start, end r3.Vector, checkTerrain bool) (Hit, bool) {
	disp := end.Sub(start)
	length := disp.Norm()
	if length == 0 {
		return Hit{}, false
	}
	dir := disp.Mul(1 / length)

	for _, ob := range entities {
		if ob.ID == pt.agent.ID {
			continue
		}
		if dist, ok := pt.ObstructedBy(ob, start, dir, length); ok {
			return Hit{Entity: ob, Distance: dist}, true
		}
	}

	if checkTerrain {
		if h, ok := pt.TerrainObstructed(start, dir, length); ok {
			body, _ := pt.query.Entity(h.Entity)
			return Hit{Entity: body, Terrain: true, Distance: h.Fraction * length}, true
		}
	}
	return Hit{}, false
}
