// Package config loads quest.yaml, the project configuration for drivers,
// pacing, waits, traces, and the world binding.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/quest/pkg/kernel/engine"
	"github.com/ormasoftchile/quest/pkg/kernel/world"
	"github.com/ormasoftchile/quest/pkg/kernel/world/remote"
	"github.com/ormasoftchile/quest/pkg/kernel/world/sim"
)

// FileName is the manifest name searched for by Discover.
const FileName = "quest.yaml"

// Config is a parsed quest.yaml.
type Config struct {
	Name   string       `yaml:"name,omitempty"`
	Driver DriverConfig `yaml:"driver,omitempty"`
	Pacing PacingConfig `yaml:"pacing,omitempty"`
	Wait   WaitConfig   `yaml:"wait,omitempty"`
	Trace  TraceConfig  `yaml:"trace,omitempty"`
	World  WorldConfig  `yaml:"world,omitempty"`

	// Root is the directory containing quest.yaml. Set after loading, not
	// from YAML. Relative paths resolve against it.
	Root string `yaml:"-"`
}

// DriverConfig configures the driver loop.
type DriverConfig struct {
	MinBackoff    time.Duration `yaml:"min_backoff,omitempty"`
	MaxBackoff    time.Duration `yaml:"max_backoff,omitempty"`
	MaxIterations int           `yaml:"max_iterations,omitempty"`
	Restarts      int           `yaml:"restarts,omitempty"`
}

// PacingConfig is the randomized delay before each external attempt.
type PacingConfig struct {
	Min time.Duration `yaml:"min,omitempty"`
	Max time.Duration `yaml:"max,omitempty"`
}

// WaitConfig bounds state waits.
type WaitConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// TraceConfig controls where run traces go.
type TraceConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// WorldConfig selects the external system. Sim wins over Bridge.
type WorldConfig struct {
	Sim     string        `yaml:"sim,omitempty"`
	Bridge  string        `yaml:"bridge,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Retries int           `yaml:"retries,omitempty"`
}

// Default returns the configuration used when no quest.yaml exists.
func Default(root string) *Config {
	return &Config{
		Name: filepath.Base(root),
		Driver: DriverConfig{
			MinBackoff: 250 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
		},
		Pacing: PacingConfig{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond},
		Wait:   WaitConfig{PollInterval: 100 * time.Millisecond, Timeout: 5 * time.Second},
		Trace:  TraceConfig{Dir: ".quest/traces"},
		World:  WorldConfig{Timeout: 5 * time.Second},
		Root:   root,
	}
}

// Load reads a quest.yaml. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg := Default(abs)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Root = abs
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Discover walks up from startPath to the nearest quest.yaml. When none is
// found it returns Default rooted at startPath's directory.
func Discover(startPath string) (*Config, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	start := dir

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(start), nil
		}
		dir = parent
	}
}

func (c *Config) check() error {
	switch {
	case c.Driver.MinBackoff < 0 || c.Driver.MaxBackoff < 0:
		return errors.New("driver backoff must not be negative")
	case c.Driver.MaxBackoff > 0 && c.Driver.MaxBackoff < c.Driver.MinBackoff:
		return errors.New("driver.max_backoff is below driver.min_backoff")
	case c.Pacing.Max < c.Pacing.Min:
		return errors.New("pacing.max is below pacing.min")
	case c.Driver.MaxIterations < 0 || c.Driver.Restarts < 0:
		return errors.New("driver counts must not be negative")
	}
	return nil
}

// Path resolves p against Root.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ClientOptions returns the world client options for this configuration.
func (c *Config) ClientOptions() []world.ClientOption {
	opts := []world.ClientOption{
		world.WithPollInterval(c.Wait.PollInterval),
		world.WithWaitTimeout(c.Wait.Timeout),
	}
	if c.Pacing.Max > 0 {
		opts = append(opts, world.WithPacer(world.NewPacer(c.Pacing.Min, c.Pacing.Max)))
	}
	return opts
}

// Engine returns the driver configuration for runID.
func (c *Config) Engine(runID string) engine.Config {
	return engine.Config{
		RunID:         runID,
		MinDelay:      c.Driver.MinBackoff,
		MaxDelay:      c.Driver.MaxBackoff,
		MaxIterations: c.Driver.MaxIterations,
	}
}

// TracePath returns the trace file for runID, or "" when tracing to disk
// is disabled.
func (c *Config) TracePath(runID string) string {
	if c.Trace.Dir == "" || c.Trace.Dir == "-" {
		return ""
	}
	return filepath.Join(c.Path(c.Trace.Dir), runID+".jsonl")
}

// OpenWorld connects to the configured world.
func (c *Config) OpenWorld() (world.Adapter, error) {
	switch {
	case c.World.Sim != "":
		return sim.Load(c.Path(c.World.Sim))
	case c.World.Bridge != "":
		return remote.New(remote.Config{
			BaseURL:    c.World.Bridge,
			Timeout:    c.World.Timeout,
			MaxRetries: c.World.Retries,
		}), nil
	default:
		return nil, errors.New("no world configured: set world.sim or world.bridge")
	}
}
