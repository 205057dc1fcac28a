// Package pathfinding steers one agent toward a destination through a world
// of moving voxel bodies. Each tick the pathfinder bends its heading away
// from nearby obstacles, and when the way is blocked it runs a bidirectional
// lattice search anchored to the obstruction, spread over background work
// quanta.
package pathfinding

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

// Scheduler hands work to the session's pools and reports the current tick.
type Scheduler interface {
	Interactive(fn func()) bool
	Background(fn func()) bool
	Tick() uint64
}

type Options struct {
	Query     world.Query
	Scheduler Scheduler
	Mover     Mover
	// Jump is optional; without it the pathfinder never jumps.
	Jump     JumpDrive
	Logger   *zap.Logger
	Settings config.Planner
}

// Pathfinder is the per-agent motion planner. Run is called once per tick
// from the interactive pool; search quanta run on the background pool. All
// planning state is guarded by mu, which is only ever try-locked so neither
// pool blocks on the other.
type Pathfinder struct {
	id      uuid.UUID
	agentID world.EntityID
	query   world.Query
	sched   Scheduler
	mover   Mover
	log     *zap.Logger
	jump    *JumpPlanner

	settings atomic.Pointer[config.Planner]
	state    atomic.Int32

	inputMu    sync.Mutex
	pending    Request
	hasPending bool

	interrupt    atomic.Bool
	halted       atomic.Bool
	searchQueued atomic.Bool

	mu          sync.Mutex
	req         Request
	hasReq      bool
	agent       world.Body
	navPos      r3.Vector
	destWorld   r3.Vector
	destBody    world.Body
	tester      *PathTester
	rotate      *RotateChecker
	entities    []world.Body
	avoid       []world.Body
	checkVoxel  bool
	clusters    SphereClusters
	obstruction Obstruction
	obPos       r3.Vector
	forward     *PathNodeSet
	backward    *PathNodeSet
	lineMode    bool
	path        Path
	waitUntil   uint64
	failSpacing float64

	outMu     sync.Mutex
	lastMove  Move
	repulsion r3.Vector
	lastErr   error
}

func New(agent world.EntityID, opts Options) *Pathfinder {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	p := &Pathfinder{
		id:      id,
		agentID: agent,
		query:   opts.Query,
		sched:   opts.Scheduler,
		mover:   opts.Mover,
		log:     log.With(zap.Uint64("agent", uint64(agent)), zap.Stringer("pathfinder", id)),
		rotate:  NewRotateChecker(opts.Query, agent, opts.Settings.RotateCheckTicks),
	}
	if opts.Jump != nil {
		p.jump = NewJumpPlanner(opts.Jump, opts.Query)
	}
	settings := opts.Settings
	p.settings.Store(&settings)
	return p
}

func (p *Pathfinder) ID() uuid.UUID {
	return p.id
}

func (p *Pathfinder) Agent() world.EntityID {
	return p.agentID
}

func (p *Pathfinder) State() State {
	if p == nil {
		return Unobstructed
	}
	return State(p.state.Load())
}

func (p *Pathfinder) setState(s State) {
	if p.State() == Crashed {
		return
	}
	if old := State(p.state.Swap(int32(s))); old != s {
		p.log.Debug("state changed", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// SetSettings replaces the tuning used from the next tick on.
func (p *Pathfinder) SetSettings(cfg config.Planner) {
	p.settings.Store(&cfg)
}

// LastMove returns the most recent output.
func (p *Pathfinder) LastMove() Move {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return p.lastMove
}

// Repulsion returns the repulsion applied in the most recent tick.
func (p *Pathfinder) Repulsion() r3.Vector {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return p.repulsion
}

// Err returns the last non-fatal planning error, such as a rejected jump or
// an exhausted search.
func (p *Pathfinder) Err() error {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return p.lastErr
}

func (p *Pathfinder) recordErr(err error) {
	p.outMu.Lock()
	p.lastErr = err
	p.outMu.Unlock()
}

// PathLen is the number of waypoints in the current path. Unlike Path it
// waits for a running search quantum to finish.
func (p *Pathfinder) PathLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path.Len()
}

// Path returns the waypoints of the current path in world coordinates, or
// nil while the pathfinder is busy.
func (p *Pathfinder) Path() []r3.Vector {
	if !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()
	wps := p.path.Waypoints()
	for i := range wps {
		wps[i] = wps[i].Add(p.obPos)
	}
	return wps
}

// MoveTo sets the navigation inputs. Repeating the current inputs keeps the
// existing search and path; anything else interrupts them.
func (p *Pathfinder) MoveTo(req Request) {
	p.inputMu.Lock()
	defer p.inputMu.Unlock()
	resumed := p.halted.Swap(false)
	if !resumed && p.hasPending && p.pending.equal(req) {
		return
	}
	p.pending = req
	p.hasPending = true
	p.interrupt.Store(true)
}

// Halt stops the agent at the next Run. A later MoveTo resumes navigation.
func (p *Pathfinder) Halt() {
	p.halted.Store(true)
	p.interrupt.Store(true)
}

// RotateObstructed reports the first entity that rotating the agent about
// axis would sweep into. Checks with the same axis are throttled.
func (p *Pathfinder) RotateObstructed(axis r3.Vector) (world.Body, bool) {
	if !p.mu.TryLock() {
		return p.rotate.Obstruction()
	}
	defer p.mu.Unlock()
	return p.rotate.Test(p.tick(), axis)
}

func (p *Pathfinder) tick() uint64 {
	if p.sched == nil {
		return 0
	}
	return p.sched.Tick()
}

// Run performs one tick of planning. It returns at once when another Run or
// a search quantum holds the planner.
func (p *Pathfinder) Run() {
	if p == nil || p.State() == Crashed {
		return
	}
	if !p.mu.TryLock() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.crash(r)
			p.mu.Unlock()
			panic(r)
		}
		p.mu.Unlock()
	}()
	p.run()
}

func (p *Pathfinder) crash(r any) {
	p.state.Store(int32(Crashed))
	p.log.Error("pathfinder crashed", zap.Any("panic", r))
	p.recordErr(fmt.Errorf("pathfinding: crashed: %v", r))
}

func (p *Pathfinder) run() {
	s := p.settings.Load()

	if p.interrupt.Swap(false) {
		p.acceptInput()
	}
	if p.halted.Load() {
		p.publish(Move{Hold: true})
		return
	}
	if !p.hasReq {
		return
	}

	agent, ok := p.query.Entity(p.agentID)
	if !ok {
		p.log.Warn("agent missing from world")
		return
	}
	p.agent = agent
	p.navPos = agent.Centre.Add(agent.Frame.Rotate(p.req.NavOffset))
	p.tester = NewPathTester(p.query, agent, s.StartRayCast)
	p.tester.Ignore(p.req.IgnorePart)

	dest, destBody, ok := p.req.Destination.Resolve(p.query)
	if !ok {
		p.log.Warn("destination entity missing", zap.Uint64("entity", uint64(p.req.Destination.Entity)))
		p.publish(Move{Hold: true})
		return
	}
	p.destWorld = dest
	p.destBody = destBody

	if p.State() == FailedToFindPath && p.tick() < p.waitUntil {
		p.publishHold()
		return
	}
	if !p.refreshObstruction() {
		p.resetSearch()
	}
	if p.State() == FollowingPath && !p.testCurrentPath(s) {
		return
	}

	p.collectEntities(s)
	if p.interrupt.Load() {
		// new inputs arrived; the next tick starts over
		return
	}
	p.steer(s)
}

// acceptInput replaces the active request with the pending one and drops
// everything planned for the old one.
func (p *Pathfinder) acceptInput() {
	p.inputMu.Lock()
	p.req = p.pending
	p.hasReq = p.hasPending
	p.inputMu.Unlock()
	p.resetSearch()
	p.setState(Unobstructed)
}

func (p *Pathfinder) resetSearch() {
	p.path.Clear()
	p.forward, p.backward = nil, nil
	p.obstruction = Obstruction{}
	p.obPos = r3.Vector{}
	p.waitUntil = 0
	p.failSpacing = 0
	if s := p.State(); s == FollowingPath || s == SearchingForPath {
		p.setState(Unobstructed)
	}
}

// refreshObstruction updates the obstruction position. It reports false when
// the obstruction has left the world.
func (p *Pathfinder) refreshObstruction() bool {
	if p.obstruction.Entity.ID == 0 {
		return true
	}
	b, ok := p.query.Entity(p.obstruction.Entity.ID)
	if !ok {
		p.log.Debug("obstruction gone", zap.Uint64("entity", uint64(p.obstruction.Entity.ID)))
		return false
	}
	p.obstruction.Entity = b
	p.obPos = b.Centre
	return true
}

// testCurrentPath advances the path when the target waypoint is reached. It
// reports false when the tick is already handled.
func (p *Pathfinder) testCurrentPath(s *config.Planner) bool {
	if p.obstructionMovingAway(s) {
		p.log.Debug("obstruction moving away, dropping path")
		p.path.Clear()
		p.setState(Unobstructed)
		p.publishHold()
		return false
	}
	target, ok := p.path.Target()
	if !ok {
		p.path.Clear()
		p.setState(Unobstructed)
		return true
	}
	if p.navPos.Sub(target.Add(p.obPos)).Norm2() < p.path.RadiusSq() {
		if !p.path.Advance() {
			p.log.Debug("path complete")
			p.path.Clear()
			p.setState(Unobstructed)
		}
	}
	return true
}

func (p *Pathfinder) obstructionMovingAway(s *config.Planner) bool {
	ob := p.obstruction.Entity
	if ob.ID == 0 || ob.Static || ob.Velocity.Norm2() < s.MovingAwaySpeedSq {
		return false
	}
	rel := ob.Velocity.Sub(p.agent.Velocity)
	return rel.Dot(ob.Centre.Sub(p.navPos)) > 0
}

// steer picks the heading for this tick and starts a search when it is
// blocked.
func (p *Pathfinder) steer(s *config.Planner) {
	following := p.path.HasTarget()
	target := p.destWorld
	if following {
		wp, _ := p.path.Target()
		target = wp.Add(p.obPos)
	}
	disp := target.Sub(p.navPos)
	dist := disp.Norm()
	dir := r3.Vector{}
	if dist > 0 {
		dir = disp.Mul(1 / dist)
	}

	rep := p.calcRepulsion(!following && p.req.CanChangeCourse, s)
	if rep != (r3.Vector{}) {
		if dist*dist < rep.Norm2() {
			disp = disp.Add(rep)
			dist = disp.Norm()
			if dist > 0 {
				dir = disp.Mul(1 / dist)
			}
		} else {
			dist += rep.Norm()
			dir = dir.Add(rep.Normalize()).Normalize()
		}
	}
	p.outMu.Lock()
	p.repulsion = rep
	p.outMu.Unlock()

	if hit, blocked := p.currentObstructed(dir, dist, s); blocked {
		if following && p.tryRepairPath(s) {
			return
		}
		p.obstruct(hit, s)
		return
	}

	if !following {
		if p.State() == SearchingForPath || p.State() == FailedToFindPath {
			p.log.Debug("way clear, search dropped")
		}
		p.forward, p.backward = nil, nil
		p.obstruction = Obstruction{}
		p.obPos = r3.Vector{}
		p.setState(Unobstructed)
		p.considerJump(dist, s)
	}
	p.publish(Move{Direction: dir, Distance: dist, TargetVelocity: p.targetVelocity(following)})
}

func (p *Pathfinder) obstruct(hit Hit, s *config.Planner) {
	if p.obstruction.Entity.ID != hit.Entity.ID {
		p.log.Debug("obstructed",
			zap.Uint64("entity", uint64(hit.Entity.ID)),
			zap.Stringer("kind", hit.Entity.Kind),
			zap.Bool("terrain", hit.Terrain),
			zap.Float64("distance", hit.Distance))
		p.forward, p.backward = nil, nil
	}
	p.path.Clear()
	p.obstruction = Obstruction{Entity: hit.Entity, MatchPosition: p.req.CanChangeCourse}
	p.obPos = hit.Entity.Centre

	if p.obstructionMovingAway(s) {
		p.publishHold()
		return
	}
	p.findAPath(s)
	p.publishHold()
}

func (p *Pathfinder) targetVelocity(following bool) r3.Vector {
	var v r3.Vector
	switch {
	case p.obstruction.MatchPosition && p.obstruction.Entity.ID != 0:
		v = p.obstruction.Entity.Velocity
	case p.req.Destination.Tracking():
		v = p.destBody.Velocity
	}
	if !following {
		v = v.Add(p.req.AddToVelocity)
	}
	return v
}

func (p *Pathfinder) publishHold() {
	p.publish(Move{Hold: true, TargetVelocity: p.targetVelocity(p.path.HasTarget())})
}

func (p *Pathfinder) publish(m Move) {
	p.outMu.Lock()
	p.lastMove = m
	p.outMu.Unlock()
	if p.mover != nil {
		p.mover.Move(p.agentID, m)
	}
}

func (p *Pathfinder) considerJump(dist float64, s *config.Planner) {
	if !s.Jump.Enabled || dist < s.Jump.MinDistance || !p.jump.Ready(p.tick()) {
		return
	}
	target, err := p.jump.Try(p.tick(), s.Jump, p.tester, p.entities, p.agent, p.destWorld)
	if err != nil {
		p.log.Debug("jump not taken", zap.Error(err))
		p.recordErr(err)
		return
	}
	p.log.Info("jump requested",
		zap.Float64("distance", target.Distance(p.agent.Centre)),
		zap.Float64("remaining", target.Distance(p.destWorld)))
}
