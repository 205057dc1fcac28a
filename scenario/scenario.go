// Package scenario loads YAML scenario files, builds them into an in-memory
// world and steps them at a fixed tick with one pathfinder per agent.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/world"
	"gopkg.in/yaml.v3"
)

// Vec is written as a [x, y, z] sequence.
type Vec [3]float64

func (v Vec) Vector() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

type Scenario struct {
	Name        string  `yaml:"name"`
	Ticks       int     `yaml:"ticks"`
	TickRate    int     `yaml:"tick_rate"`
	WorldRadius float64 `yaml:"world_radius"`
	// StopOnArrival ends the run early once every agent has arrived.
	StopOnArrival *bool `yaml:"stop_on_arrival"`
	// Config is decoded on top of the effective configuration, so it only
	// needs the fields it overrides.
	Config yaml.Node   `yaml:"config"`
	Bodies []BodySpec  `yaml:"bodies"`
	Agents []AgentSpec `yaml:"agents"`

	// dir is where relative script paths are looked up first.
	dir string
}

type BodySpec struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Position Vec      `yaml:"position"`
	Velocity Vec      `yaml:"velocity"`
	CellSize float64  `yaml:"cell_size"`
	Shape    Shape    `yaml:"shape"`
	Mass     float64  `yaml:"mass"`
	Static   bool     `yaml:"static"`
	Script   string   `yaml:"script"`
	Attach   []string `yaml:"attach"`
}

// Shape describes the cells of a grid body, or the radius of a character.
type Shape struct {
	Type   string   `yaml:"type"`
	Min    [3]int   `yaml:"min"`
	Max    [3]int   `yaml:"max"`
	Cells  [][3]int `yaml:"cells"`
	Radius float64  `yaml:"radius"`
}

type AgentSpec struct {
	Body            string          `yaml:"body"`
	Destination     DestinationSpec `yaml:"destination"`
	NavOffset       Vec             `yaml:"nav_offset"`
	CanChangeCourse bool            `yaml:"can_change_course"`
	IgnoreVoxel     bool            `yaml:"ignore_voxel"`
	IgnoreEntity    string          `yaml:"ignore_entity"`
	MaxSpeed        float64         `yaml:"max_speed"`
	// Response is how much of the gap to the wanted velocity is closed each
	// tick, in (0,1]. Zero means 1.
	Response       float64 `yaml:"response"`
	ArriveDistance float64 `yaml:"arrive_distance"`
	JumpCharge     float64 `yaml:"jump_charge"`
	InGravity      bool    `yaml:"in_gravity"`
}

type DestinationSpec struct {
	Point  *Vec   `yaml:"point"`
	Entity string `yaml:"entity"`
	Offset Vec    `yaml:"offset"`
}

// Load reads a scenario file. Scripts named by the file are resolved
// relative to its directory before the embedded ones.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// LoadEmbedded reads one of the bundled scenarios by name.
func LoadEmbedded(name string) (*Scenario, error) {
	data, err := ScenariosFS.ReadFile(cleanScenarioPath(name))
	if err != nil {
		return nil, fmt.Errorf("scenario: embedded %s: %w", name, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: unmarshal: %w", err)
	}
	return &sc, nil
}

// Effective applies the scenario's overrides to base.
func (s *Scenario) Effective(base config.Config) (config.Config, error) {
	cfg := base
	if s.Config.Kind != 0 {
		if err := s.Config.Decode(&cfg); err != nil {
			return base, fmt.Errorf("scenario: config overrides: %w", err)
		}
	}
	if s.TickRate > 0 {
		cfg.Session.TickRate = s.TickRate
	}
	if s.WorldRadius > 0 {
		cfg.Planner.Jump.WorldRadius = s.WorldRadius
	}
	return cfg, nil
}

func (s *Scenario) stopOnArrival() bool {
	return s.StopOnArrival == nil || *s.StopOnArrival
}

// Validate reports every problem at once, including invalid effective
// configuration and scripts that fail to compile.
func (s *Scenario) Validate(base config.Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Ticks <= 0 {
		add("ticks must be positive, got %d", s.Ticks)
	}
	if s.TickRate < 0 {
		add("tick_rate must not be negative, got %d", s.TickRate)
	}

	names := make(map[string]BodySpec, len(s.Bodies))
	for i, b := range s.Bodies {
		label := b.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			add("bodies[%d]: name is required", i)
		} else if _, dup := names[b.Name]; dup {
			add("body %s: duplicate name", b.Name)
		}
		names[b.Name] = b
		if err := b.validate(); err != nil {
			add("body %s: %w", label, err)
		}
		if b.Script != "" {
			if _, err := s.compileScript(b.Script); err != nil {
				add("body %s: %w", label, err)
			}
		}
	}
	for _, b := range s.Bodies {
		for _, other := range b.Attach {
			if _, ok := names[other]; !ok {
				add("body %s: attach to unknown body %q", b.Name, other)
			}
		}
	}

	if len(s.Agents) == 0 {
		add("at least one agent is required")
	}
	agents := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		label := fmt.Sprintf("agents[%d]", i)
		body, ok := names[a.Body]
		switch {
		case a.Body == "":
			add("%s: body is required", label)
		case !ok:
			add("%s: unknown body %q", label, a.Body)
		case body.Static:
			add("%s: body %s is static", label, a.Body)
		}
		if agents[a.Body] {
			add("%s: body %s already has an agent", label, a.Body)
		}
		agents[a.Body] = true
		if a.MaxSpeed <= 0 {
			add("%s: max_speed must be positive, got %v", label, a.MaxSpeed)
		}
		if a.Response < 0 || a.Response > 1 {
			add("%s: response must be in [0,1], got %v", label, a.Response)
		}
		d := a.Destination
		switch {
		case d.Point == nil && d.Entity == "":
			add("%s: destination needs a point or an entity", label)
		case d.Point != nil && d.Entity != "":
			add("%s: destination has both a point and an entity", label)
		case d.Entity != "":
			if _, ok := names[d.Entity]; !ok {
				add("%s: destination entity %q is unknown", label, d.Entity)
			}
		}
		if a.IgnoreEntity != "" {
			if _, ok := names[a.IgnoreEntity]; !ok {
				add("%s: ignore_entity %q is unknown", label, a.IgnoreEntity)
			}
		}
	}

	cfg, err := s.Effective(base)
	if err != nil {
		errs = append(errs, err)
	} else if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b BodySpec) kind() (world.Kind, error) {
	switch strings.ToLower(b.Kind) {
	case "":
		if b.Shape.Type == "sphere" {
			return world.KindCharacter, nil
		}
		return world.KindBody, nil
	case "body":
		return world.KindBody, nil
	case "terrain":
		return world.KindTerrain, nil
	case "character":
		return world.KindCharacter, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", b.Kind)
	}
}

func (b BodySpec) validate() error {
	kind, err := b.kind()
	if err != nil {
		return err
	}
	if kind == world.KindCharacter {
		if b.Shape.Type != "" && b.Shape.Type != "sphere" {
			return fmt.Errorf("characters only take a sphere shape, got %q", b.Shape.Type)
		}
		if b.Shape.Radius <= 0 {
			return fmt.Errorf("shape radius must be positive")
		}
		return nil
	}
	if b.CellSize < 0 {
		return fmt.Errorf("cell_size must not be negative")
	}
	cells, err := b.Shape.cells()
	if err != nil {
		return err
	}
	if len(cells) == 0 {
		return fmt.Errorf("shape has no cells")
	}
	return nil
}

func (sh Shape) cells() ([]world.Cell, error) {
	lo := world.Cell{X: sh.Min[0], Y: sh.Min[1], Z: sh.Min[2]}
	hi := world.Cell{X: sh.Max[0], Y: sh.Max[1], Z: sh.Max[2]}
	switch sh.Type {
	case "box":
		return world.BoxCells(lo, hi), nil
	case "hollow":
		return world.HollowBoxCells(lo, hi), nil
	case "cells":
		out := make([]world.Cell, 0, len(sh.Cells))
		for _, c := range sh.Cells {
			out = append(out, world.Cell{X: c[0], Y: c[1], Z: c[2]})
		}
		return out, nil
	case "":
		return nil, fmt.Errorf("shape type is required")
	default:
		return nil, fmt.Errorf("unknown shape type %q", sh.Type)
	}
}

func (b BodySpec) worldSpec() (world.Spec, error) {
	kind, err := b.kind()
	if err != nil {
		return world.Spec{}, err
	}
	spec := world.Spec{
		Kind:     kind,
		Frame:    world.Identity(b.Position.Vector()),
		Velocity: b.Velocity.Vector(),
		Mass:     b.Mass,
		Static:   b.Static || kind == world.KindTerrain,
	}
	if kind == world.KindCharacter {
		spec.Radius = b.Shape.Radius
		return spec, nil
	}
	spec.CellSize = b.CellSize
	if spec.CellSize == 0 {
		spec.CellSize = 1
	}
	spec.Cells, err = b.Shape.cells()
	return spec, err
}

// Build adds every body to w and returns the entity id of each by name.
func (s *Scenario) Build(w *world.Memory) (map[string]world.EntityID, error) {
	ids := make(map[string]world.EntityID, len(s.Bodies))
	for _, b := range s.Bodies {
		spec, err := b.worldSpec()
		if err != nil {
			return nil, fmt.Errorf("scenario: body %s: %w", b.Name, err)
		}
		id, err := w.Add(spec)
		if err != nil {
			return nil, fmt.Errorf("scenario: body %s: %w", b.Name, err)
		}
		ids[b.Name] = id
	}
	for _, b := range s.Bodies {
		for _, other := range b.Attach {
			w.Attach(ids[b.Name], ids[other])
		}
	}
	return ids, nil
}
