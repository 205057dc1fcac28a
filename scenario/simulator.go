package scenario

import (
	"context"
	"fmt"

	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/pathfinding"
	"github.com/milk9111/autopilot/session"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

const defaultArriveDistance = 1

// Agent is a scenario body driven by its own pathfinder.
type Agent struct {
	Name       string
	Body       world.EntityID
	Pathfinder *pathfinding.Pathfinder

	spec      AgentSpec
	request   pathfinding.Request
	drive     *jumpDrive
	arrived   bool
	arrivedAt uint64
}

func (a *Agent) arriveDistance() float64 {
	if a.spec.ArriveDistance > 0 {
		return a.spec.ArriveDistance
	}
	return defaultArriveDistance
}

// distance is from the agent's navigation point to its destination.
func (a *Agent) distance(w *world.Memory) (float64, bool) {
	body, ok := w.Entity(a.Body)
	if !ok {
		return 0, false
	}
	dest, _, ok := a.request.Destination.Resolve(w)
	if !ok {
		return 0, false
	}
	nav := body.Centre.Add(body.Frame.Rotate(a.request.NavOffset))
	return nav.Distance(dest), true
}

type Simulator struct {
	scenario *Scenario
	cfg      config.Config
	log      *zap.Logger
	world    *world.Memory
	session  *session.Session
	ids      map[string]world.EntityID
	agents   []*Agent
	scripts  []*MotionScript
	systems  *Scheduler
	tick     uint64
	started  bool
}

// New validates sc against base, builds its world and registers a
// pathfinder per agent with a fresh session. Close releases the session.
func New(ctx context.Context, sc *Scenario, base config.Config, log *zap.Logger) (*Simulator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := sc.Validate(base); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", sc.Name, err)
	}
	cfg, err := sc.Effective(base)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("scenario", sc.Name))

	w := world.NewMemory(log.Named("world"))
	ids, err := sc.Build(w)
	if err != nil {
		return nil, err
	}

	sim := &Simulator{
		scenario: sc,
		cfg:      cfg,
		log:      log,
		world:    w,
		ids:      ids,
		systems: NewScheduler(
			ScriptSystem{},
			NavigationSystem{},
			KinematicSystem{},
			PhysicsSystem{},
			ArrivalSystem{},
		),
	}

	for _, b := range sc.Bodies {
		if b.Script == "" {
			continue
		}
		src, err := sc.LoadScript(b.Script)
		if err != nil {
			return nil, err
		}
		ms, err := NewMotionScript(b.Script, src, ids[b.Name], cfg.Session.TickRate, log)
		if err != nil {
			return nil, err
		}
		sim.scripts = append(sim.scripts, ms)
	}

	sim.session = session.New(ctx, cfg.Session, log)
	for _, spec := range sc.Agents {
		a := sim.newAgent(spec)
		if err := sim.session.Register(a.Pathfinder); err != nil {
			_ = sim.session.Close()
			return nil, err
		}
		sim.agents = append(sim.agents, a)
	}
	return sim, nil
}

func (sim *Simulator) newAgent(spec AgentSpec) *Agent {
	id := sim.ids[spec.Body]
	a := &Agent{
		Name: spec.Body,
		Body: id,
		spec: spec,
		request: pathfinding.Request{
			NavOffset:       spec.NavOffset.Vector(),
			CanChangeCourse: spec.CanChangeCourse,
			IgnoreVoxel:     spec.IgnoreVoxel,
			IgnoreEntity:    sim.ids[spec.IgnoreEntity],
		},
	}
	if d := spec.Destination; d.Point != nil {
		a.request.Destination = pathfinding.PointDestination(d.Point.Vector())
	} else {
		a.request.Destination = pathfinding.EntityDestination(sim.ids[d.Entity], d.Offset.Vector())
	}

	opts := pathfinding.Options{
		Query:     sim.world,
		Scheduler: sim.session,
		Logger:    sim.log.With(zap.String("body", spec.Body)),
		Settings:  sim.cfg.Planner,
	}
	if spec.JumpCharge > 0 {
		a.drive = &jumpDrive{charge: spec.JumpCharge, gravity: spec.InGravity, w: sim.world}
		opts.Jump = a.drive
	}
	a.Pathfinder = pathfinding.New(id, opts)
	return a
}

func (sim *Simulator) World() *world.Memory {
	return sim.world
}

func (sim *Simulator) Config() config.Config {
	return sim.cfg
}

func (sim *Simulator) Agents() []*Agent {
	return append([]*Agent(nil), sim.agents...)
}

func (sim *Simulator) Tick() uint64 {
	return sim.tick
}

// Entity returns the id a scenario body was given.
func (sim *Simulator) Entity(name string) (world.EntityID, bool) {
	id, ok := sim.ids[name]
	return id, ok
}

// SetSettings replaces the planner settings of every agent. It is safe to
// call while the simulation runs.
func (sim *Simulator) SetSettings(p config.Planner) {
	for _, a := range sim.agents {
		a.Pathfinder.SetSettings(p)
	}
	sim.log.Info("planner settings replaced", zap.Int("agents", len(sim.agents)))
}

// Step runs every system once.
func (sim *Simulator) Step(ctx context.Context) error {
	return sim.systems.Update(ctx, sim)
}

func (sim *Simulator) allArrived() bool {
	for _, a := range sim.agents {
		if !a.arrived {
			return false
		}
	}
	return true
}

// Run steps the scenario for ticks ticks, or the scenario's own count when
// ticks is not positive. It stops early when every agent has arrived unless
// the scenario says otherwise.
func (sim *Simulator) Run(ctx context.Context, ticks int) (Result, error) {
	if ticks <= 0 {
		ticks = sim.scenario.Ticks
	}
	sim.log.Info("run started",
		zap.Int("ticks", ticks),
		zap.Int("agents", len(sim.agents)),
		zap.Int("scripts", len(sim.scripts)))

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return sim.Result(), err
		}
		if err := sim.Step(ctx); err != nil {
			return sim.Result(), err
		}
		if sim.scenario.stopOnArrival() && sim.allArrived() {
			break
		}
	}

	res := sim.Result()
	sim.log.Info("run finished",
		zap.Uint64("ticks", res.Ticks),
		zap.Int("arrived", res.Arrived()))
	return res, nil
}

// Close stops the session and returns the first background failure.
func (sim *Simulator) Close() error {
	if sim == nil {
		return nil
	}
	return sim.session.Close()
}
