// Package config loads the run configuration and the simulation definition
// tables.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	ModeMatrix  = "matrix"
	ModeCompact = "compact"
)

// Config holds the run configuration.
type Config struct {
	Mode          string `yaml:"mode"`
	Multiplier    int    `yaml:"multiplier"`
	LandformLayer bool   `yaml:"landform_layer"`
	DefinitionDir string `yaml:"definition_dir"`

	Backend BackendConfig `yaml:"backend"`
	Model   ModelConfig   `yaml:"model"`
	Rollout RolloutConfig `yaml:"rollout"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig selects the simulation backend. A non-empty Replay plays a
// recorded trace instead of dialing URL.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Replay  string        `yaml:"replay"`
}

// ModelConfig configures the ONNX policy. An empty Path selects the random
// policy.
type ModelConfig struct {
	Path         string        `yaml:"path"`
	Sessions     int           `yaml:"sessions"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type RolloutConfig struct {
	Episodes      int   `yaml:"episodes"`
	MaxSteps      int   `yaml:"max_steps"`
	Seed          int64 `yaml:"seed"`
	Workers       int   `yaml:"workers"`
	ProgressEvery int   `yaml:"progress_every"`
}

type StoreConfig struct {
	Dir       string `yaml:"dir"`
	FlushRows int    `yaml:"flush_rows"`
	Trace     bool   `yaml:"trace"`
	Index     string `yaml:"index"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads the embedded defaults and overlays the YAML file at path, if
// any.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Mode = strings.ToLower(c.Mode)
	switch c.Mode {
	case ModeMatrix, ModeCompact:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Mode == ModeMatrix && c.Multiplier <= 0 {
		return fmt.Errorf("config: multiplier must be positive, got %d", c.Multiplier)
	}
	if c.Rollout.MaxSteps <= 0 {
		return fmt.Errorf("config: rollout.max_steps must be positive, got %d", c.Rollout.MaxSteps)
	}
	if c.Model.BatchSize <= 0 {
		c.Model.BatchSize = 1
	}
	if c.Model.Sessions <= 0 {
		c.Model.Sessions = 1
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
