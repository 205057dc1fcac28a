package scenario

import (
	"sort"

	"github.com/jakecoffman/cp"
	"gopkg.in/yaml.v3"
)

type Result struct {
	Scenario string `yaml:"scenario"`
	Ticks    uint64 `yaml:"ticks"`
	// Extents is the xy bounding box of every body as [left, bottom, right, top].
	Extents [4]float64    `yaml:"extents,flow"`
	Agents  []AgentResult `yaml:"agents"`
}

type AgentResult struct {
	Name        string  `yaml:"name"`
	State       string  `yaml:"state"`
	Position    Vec     `yaml:"position"`
	Distance    float64 `yaml:"distance"`
	Arrived     bool    `yaml:"arrived"`
	ArrivedTick uint64  `yaml:"arrived_tick,omitempty"`
	Jumps       int     `yaml:"jumps,omitempty"`
	Waypoints   int     `yaml:"waypoints,omitempty"`
	Error       string  `yaml:"error,omitempty"`
}

// Arrived counts the agents that reached their destination.
func (r Result) Arrived() int {
	n := 0
	for _, a := range r.Agents {
		if a.Arrived {
			n++
		}
	}
	return n
}

func (r Result) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

// Result snapshots every agent.
func (sim *Simulator) Result() Result {
	res := Result{Scenario: sim.scenario.Name, Ticks: sim.tick}
	if bb, ok := sim.extents(); ok {
		res.Extents = [4]float64{bb.L, bb.B, bb.R, bb.T}
	}
	for _, a := range sim.agents {
		ar := AgentResult{
			Name:        a.Name,
			State:       a.Pathfinder.State().String(),
			Arrived:     a.arrived,
			ArrivedTick: a.arrivedAt,
			Jumps:       a.drive.count(),
			Waypoints:   a.Pathfinder.PathLen(),
		}
		if b, ok := sim.world.Entity(a.Body); ok {
			ar.Position = Vec{b.Centre.X, b.Centre.Y, b.Centre.Z}
		}
		if d, ok := a.distance(sim.world); ok {
			ar.Distance = d
		}
		if err := a.Pathfinder.Err(); err != nil {
			ar.Error = err.Error()
		}
		res.Agents = append(res.Agents, ar)
	}
	return res
}

// extents is the minimap box: every body projected onto the xy plane.
func (sim *Simulator) extents() (cp.BB, bool) {
	names := make([]string, 0, len(sim.ids))
	for name := range sim.ids {
		names = append(names, name)
	}
	sort.Strings(names)

	var bb cp.BB
	found := false
	for _, name := range names {
		b, ok := sim.world.Entity(sim.ids[name])
		if !ok {
			continue
		}
		circle := cp.NewBBForCircle(cp.Vector{X: b.Centre.X, Y: b.Centre.Y}, b.Radius)
		if !found {
			bb, found = circle, true
			continue
		}
		bb = bb.Merge(circle)
	}
	return bb, found
}
