package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed scenarios/*.yaml
var ScenariosFS embed.FS

//go:embed scripts/*.tengo
var ScriptsFS embed.FS

// Embedded lists the bundled scenario names.
func Embedded() []string {
	entries, err := fs.ReadDir(ScenariosFS, "scenarios")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadScript reads a motion script, preferring a file next to the scenario
// over the embedded copy.
func (s *Scenario) LoadScript(name string) ([]byte, error) {
	if s != nil && s.dir != "" {
		if data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name))); err == nil {
			return data, nil
		}
	}
	data, err := ScriptsFS.ReadFile(cleanScriptPath(name))
	if err != nil {
		return nil, fmt.Errorf("scenario: script %s: %w", name, err)
	}
	return data, nil
}

func cleanScenarioPath(name string) string {
	s := filepath.ToSlash(name)
	s = strings.TrimPrefix(s, "scenarios/")
	if filepath.Ext(s) == "" {
		s += ".yaml"
	}
	return "scenarios/" + s
}

func cleanScriptPath(name string) string {
	s := filepath.ToSlash(name)
	s = strings.TrimPrefix(s, "scripts/")
	if filepath.Ext(s) == "" {
		s += ".tengo"
	}
	return "scripts/" + s
}
