package pathfinding

import (
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// manualScheduler queues work instead of running it, so tests decide when
// background quanta execute.
type manualScheduler struct {
	mu          sync.Mutex
	tick        uint64
	interactive []func()
	background  []func()
}

func (m *manualScheduler) Interactive(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactive = append(m.interactive, fn)
	return true
}

func (m *manualScheduler) Background(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.background = append(m.background, fn)
	return true
}

func (m *manualScheduler) Tick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

func (m *manualScheduler) advance(n uint64) {
	m.mu.Lock()
	m.tick += n
	m.mu.Unlock()
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.background)
}

// drain runs background work, including work it queues, until none is
// left or limit tasks have run. It returns the number of tasks run.
func (m *manualScheduler) drain(limit int) int {
	ran := 0
	for ran < limit {
		m.mu.Lock()
		if len(m.background) == 0 {
			m.mu.Unlock()
			break
		}
		fn := m.background[0]
		m.background = m.background[1:]
		m.mu.Unlock()
		fn()
		ran++
	}
	return ran
}

func testPlanner() config.Planner {
	s := config.Default().Planner
	s.EntitySearchDistance = 50
	s.DefaultNodeDistance = 4
	s.MinNodeDistance = 2
	s.TurnPenalty = 1
	s.BlueSkyPadding = 1
	s.FallbackDistance = 5
	s.SearchQuantum = 64
	s.AnchorTolerance = 1
	s.FailBackoffTicks = 5
	s.Jump.Enabled = false
	return s
}

// cube is a 3x3x3 body of unit cells centred on at.
func cube(at r3.Vector) world.Spec {
	return world.Spec{
		Kind:     world.KindBody,
		Frame:    world.Identity(at),
		CellSize: 1,
		Cells:    world.BoxCells(world.Cell{X: -1, Y: -1, Z: -1}, world.Cell{X: 1, Y: 1, Z: 1}),
	}
}

func addEntity(t *testing.T, w *world.Memory, spec world.Spec) world.EntityID {
	t.Helper()
	id, err := w.Add(spec)
	require.NoError(t, err)
	return id
}

type fixture struct {
	world *world.Memory
	sched *manualScheduler
	agent world.EntityID
	pf    *Pathfinder
}

func newFixture(t *testing.T, settings config.Planner) *fixture {
	t.Helper()
	w := world.NewMemory(zaptest.NewLogger(t))
	f := &fixture{world: w, sched: &manualScheduler{}}
	f.agent = addEntity(t, w, cube(r3.Vector{}))
	f.pf = New(f.agent, Options{
		Query:     w,
		Scheduler: f.sched,
		Logger:    zaptest.NewLogger(t),
		Settings:  settings,
	})
	return f
}

func goTo(p r3.Vector) Request {
	return Request{Destination: PointDestination(p), CanChangeCourse: true}
}
