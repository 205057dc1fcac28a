package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128.0, cfg.Planner.DefaultNodeDistance)
	assert.Equal(t, 2.0, cfg.Planner.MinNodeDistance)
	assert.Equal(t, 1024, cfg.Planner.MaxOpenNodes)
	assert.Equal(t, uint64(600), cfg.Planner.FailBackoffTicks)
	assert.Equal(t, uint64(10), cfg.Planner.RotateCheckTicks)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  turn_penalty: 5\nsession:\n  parallelism: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Planner.TurnPenalty = 5
	want.Session.Parallelism = 2
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("overlay mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad_yaml", "planner: [1, 2"},
		{"invalid_values", "planner:\n  min_node_distance: 0\n  search_quantum: -1\n"},
		{"bad_level", "logging:\n  level: loud\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(c.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Session.Parallelism = 0
	cfg.Planner.MaxOpenNodes = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.parallelism")
	assert.Contains(t, err.Error(), "planner.max_open_nodes")
}

func TestReloaderDeliversValidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "navsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  turn_penalty: 2\n"), 0o644))

	r, err := Watch(path)
	require.NoError(t, err)
	defer r.Close()

	next := func() (Config, error) {
		t.Helper()
		select {
		case cfg := <-r.Updates:
			return cfg, nil
		case err := <-r.Errors:
			return Config{}, err
		case <-time.After(5 * time.Second):
			t.Fatalf("nothing reloaded from %s", path)
			return Config{}, nil
		}
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("planner: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  turn_penalty: 9\n"), 0o644))
	cfg, err := next()
	require.NoError(t, err)
	assert.Equal(t, 9.0, cfg.Planner.TurnPenalty)
	assert.Equal(t, Default().Planner.MaxOpenNodes, cfg.Planner.MaxOpenNodes)

	require.NoError(t, os.WriteFile(path, []byte("planner:\n  max_open_nodes: 0\n"), 0o644))
	_, err = next()
	assert.ErrorContains(t, err, "planner.max_open_nodes")

	require.NoError(t, os.WriteFile(path, []byte("planner:\n  turn_penalty: 3\n"), 0o644))
	cfg, err = next()
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Planner.TurnPenalty)
}

func TestWatchRejectsInvalidStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  hold_distance: -1\n"), 0o644))
	_, err := Watch(path)
	assert.ErrorContains(t, err, "planner.hold_distance")
}
