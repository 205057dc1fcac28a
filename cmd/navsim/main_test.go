package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/milk9111/autopilot/config"
	"github.com/milk9111/autopilot/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigPrintsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  turn_penalty: 7\n"), 0o644))

	out, err := execute(t, "config", "--config", path, "--log-level", "debug")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.Planner.TurnPenalty)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, config.Default().Planner.SpeedFactor, cfg.Planner.SpeedFactor)

	_, err = execute(t, "config", "--log-level", "loud")
	assert.ErrorContains(t, err, "logging.level")
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "open", "wall")
	require.NoError(t, err)
	assert.Contains(t, out, "open: ok")
	assert.Contains(t, out, "wall: ok")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\n"), 0o644))
	_, err = execute(t, "validate", "open", bad)
	assert.ErrorContains(t, err, "ticks must be positive")

	_, err = execute(t, "validate", "no-such-scenario")
	assert.ErrorContains(t, err, "neither a file nor a bundled scenario")
}

func TestList(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range scenario.Embedded() {
		assert.Contains(t, out, name)
	}
}

func TestRunWritesResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.yaml")
	_, err := execute(t, "run", "open", "--ticks", "10", "--log-level", "error", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var res scenario.Result
	require.NoError(t, yaml.Unmarshal(data, &res))
	assert.Equal(t, "open", res.Scenario)
	assert.Equal(t, uint64(10), res.Ticks)
	require.Len(t, res.Agents, 1)
	assert.False(t, res.Agents[0].Arrived)
}
