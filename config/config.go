package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Session SessionConfig `yaml:"session"`
	Planner Planner       `yaml:"planner"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding"`
}

type SessionConfig struct {
	// Parallelism is the worker count of each pool.
	Parallelism int `yaml:"parallelism"`
	QueueSize   int `yaml:"queue_size"`
	TickRate    int `yaml:"tick_rate"`
}

// Planner holds the tuning of the pathfinder. Distances are in world units,
// durations in simulation ticks.
type Planner struct {
	SpeedFactor          float64 `yaml:"speed_factor"`
	VoxelAdd             float64 `yaml:"voxel_add"`
	StartRayCast         float64 `yaml:"start_ray_cast"`
	EntitySearchDistance float64 `yaml:"entity_search_distance"`
	RepulseScale         float64 `yaml:"repulse_scale"`
	RepulseReach         float64 `yaml:"repulse_reach"`
	MinObstacleMass      float64 `yaml:"min_obstacle_mass"`

	DefaultNodeDistance  float64 `yaml:"default_node_distance"`
	MinNodeDistance      float64 `yaml:"min_node_distance"`
	MaxOpenNodes         int     `yaml:"max_open_nodes"`
	TurnPenalty          float64 `yaml:"turn_penalty"`
	BlueSkyPadding       float64 `yaml:"blue_sky_padding"`
	FallbackDistance     float64 `yaml:"fallback_distance"`
	SearchQuantum        int     `yaml:"search_quantum"`
	WaypointRadiusFactor float64 `yaml:"waypoint_radius_factor"`
	AnchorTolerance      float64 `yaml:"anchor_tolerance"`

	MovingAwaySpeedSq float64 `yaml:"moving_away_speed_sq"`
	HoldDistance      float64 `yaml:"hold_distance"`
	FailBackoffTicks  uint64  `yaml:"fail_backoff_ticks"`
	RotateCheckTicks  uint64  `yaml:"rotate_check_ticks"`

	Jump JumpConfig `yaml:"jump"`
}

type JumpConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MinDistance float64 `yaml:"min_distance"`
	RetryTicks  uint64  `yaml:"retry_ticks"`
	FailTicks   uint64  `yaml:"fail_ticks"`
	WorldRadius float64 `yaml:"world_radius"`
}

// Default parses the embedded default.yaml.
func Default() Config {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("config: embedded default.yaml: %v", err))
	}
	return cfg
}

// Parse decodes data on top of the zero value; missing fields stay zero.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Overlay decodes data on top of base so a partial file only overrides
// the fields it names.
func Overlay(base Config, data []byte) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	check(c.Session.Parallelism > 0, "session.parallelism must be positive, got %d", c.Session.Parallelism)
	check(c.Session.QueueSize > 0, "session.queue_size must be positive, got %d", c.Session.QueueSize)
	check(c.Session.TickRate > 0, "session.tick_rate must be positive, got %d", c.Session.TickRate)

	p := c.Planner
	check(p.SpeedFactor >= 0, "planner.speed_factor must not be negative")
	check(p.RepulseScale >= 1, "planner.repulse_scale must be at least 1, got %v", p.RepulseScale)
	check(p.MinNodeDistance > 0, "planner.min_node_distance must be positive, got %v", p.MinNodeDistance)
	check(p.DefaultNodeDistance >= p.MinNodeDistance, "planner.default_node_distance %v is below min_node_distance %v", p.DefaultNodeDistance, p.MinNodeDistance)
	check(p.MaxOpenNodes > 0, "planner.max_open_nodes must be positive, got %d", p.MaxOpenNodes)
	check(p.SearchQuantum > 0, "planner.search_quantum must be positive, got %d", p.SearchQuantum)
	check(p.WaypointRadiusFactor > 0 && p.WaypointRadiusFactor < 1, "planner.waypoint_radius_factor must be in (0,1), got %v", p.WaypointRadiusFactor)
	check(p.TurnPenalty >= 0, "planner.turn_penalty must not be negative")
	check(p.HoldDistance >= 0, "planner.hold_distance must not be negative, got %v", p.HoldDistance)
	check(p.Jump.MinDistance >= 0, "planner.jump.min_distance must not be negative")
	check(!p.Jump.Enabled || p.Jump.WorldRadius > 0, "planner.jump.world_radius must be positive when jumps are enabled")

	return errors.Join(errs...)
}
