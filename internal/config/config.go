// Package config implements the YAML configuration loader (A1): one
// process-level file (actuator endpoint, control-plane and metrics listen
// addresses, fixtures directory, tick rate, logging backend) plus one
// fixture file per fixture (name, owned outputs, ordered program list,
// builtin-disable flags), validated against each other at load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig selects the logging backend and level, mirroring
// internal/logging.Config's fields in YAML-friendly form.
type LoggingConfig struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
}

// FailureConfig configures per-program failure escalation (A8), shared
// across every loaded program; ProgramConfig has no per-program override.
type FailureConfig struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	RateWindow             time.Duration `yaml:"rate_window"`
	RateLimit              int           `yaml:"rate_limit"`
}

// Config is the process-level configuration document.
type Config struct {
	ActuatorEndpoint   string        `yaml:"actuator_endpoint"`
	ControlPlaneListen string        `yaml:"control_plane_listen"`
	MetricsListen      string        `yaml:"metrics_listen"`
	FixturesDir        string        `yaml:"fixtures_dir"`
	TickRate           time.Duration `yaml:"tick_rate"`

	Logging LoggingConfig `yaml:"logging"`
	Failure FailureConfig `yaml:"failure"`
}

// DefaultTickRate matches scheduler.resolveOptions' own default, so a
// Config with a zero TickRate produces the same cadence as an unconfigured
// Scheduler.
const DefaultTickRate = 5 * time.Millisecond

// Load reads and parses the process-level configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.ActuatorEndpoint == "" {
		return nil, fmt.Errorf("config: %s: actuator_endpoint is required", path)
	}
	return &cfg, nil
}

// ProgramConfig is one catalog entry of a fixture: a named script and the
// path it is loaded from, relative to the fixture file's directory unless
// absolute.
type ProgramConfig struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority"`
	SlowMode bool   `yaml:"slow_mode"`
	// StartEnabled overrides the default (the catalog entry matching
	// FixtureConfig.Active starts enabled, every other entry starts
	// disabled).
	StartEnabled *bool `yaml:"start_enabled"`
}

// FixtureConfig is one fixture's declaration: its owned outputs, its
// program catalog, and which catalog entry (or builtin) starts active.
type FixtureConfig struct {
	Name    string          `yaml:"name"`
	Outputs []int           `yaml:"outputs"`
	Active  string          `yaml:"active"`
	Programs []ProgramConfig `yaml:"programs"`

	// DisableBuiltins suppresses the synthesized OFF/ON/MANUAL catalog
	// entries entirely.
	DisableBuiltins bool `yaml:"disable_builtins"`
	// DisableManual suppresses only the MANUAL builtin, keeping OFF/ON.
	DisableManual bool `yaml:"disable_manual"`

	// sourcePath records the file this fixture was loaded from, for error
	// messages and for resolving relative ProgramConfig.Path entries.
	sourcePath string
}

// SourcePath returns the file this fixture configuration was loaded from.
func (f FixtureConfig) SourcePath() string { return f.sourcePath }

// LoadFixtures reads every *.yaml file directly under dir as one
// FixtureConfig each, then validates the full set: fixture names must be
// unique and owned output sets must be pairwise disjoint (Open Question
// decision: overlapping-output fixtures are rejected at load time rather
// than arbitrated at runtime, since two fixtures are supposed to represent
// disjoint physical groups — see DESIGN.md).
func LoadFixtures(dir string) ([]FixtureConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read fixtures dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	fixtures := make([]FixtureConfig, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read fixture %s: %w", path, err)
		}
		var fc FixtureConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parse fixture %s: %w", path, err)
		}
		if fc.Name == "" {
			return nil, fmt.Errorf("config: fixture %s: name is required", path)
		}
		if len(fc.Outputs) == 0 {
			return nil, fmt.Errorf("config: fixture %s: outputs is required", path)
		}
		fc.sourcePath = path
		fixtures = append(fixtures, fc)
	}

	if err := validateFixtures(fixtures); err != nil {
		return nil, err
	}
	return fixtures, nil
}

// validateFixtures rejects duplicate fixture names and overlapping output
// addresses across fixtures, at load time, before any scheduler exists.
func validateFixtures(fixtures []FixtureConfig) error {
	seenName := make(map[string]string, len(fixtures))
	ownerOfOutput := make(map[int]string)

	for _, fc := range fixtures {
		if prior, ok := seenName[fc.Name]; ok {
			return fmt.Errorf("config: duplicate fixture name %q (%s and %s)", fc.Name, prior, fc.sourcePath)
		}
		seenName[fc.Name] = fc.sourcePath

		for _, out := range fc.Outputs {
			if prior, ok := ownerOfOutput[out]; ok {
				return fmt.Errorf("config: fixture %q and %q both claim output address %d", prior, fc.Name, out)
			}
			ownerOfOutput[out] = fc.Name
		}
	}
	return nil
}

// ResolveProgramPath joins a ProgramConfig's Path against the fixture
// file's own directory, unless Path is already absolute.
func (f FixtureConfig) ResolveProgramPath(p ProgramConfig) string {
	if filepath.IsAbs(p.Path) {
		return p.Path
	}
	return filepath.Join(filepath.Dir(f.sourcePath), p.Path)
}
