package config

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed default.yaml
var defaultYAML []byte

// Load reads a config file and overlays it on the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := Overlay(base, data)
	if err != nil {
		return base, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}
