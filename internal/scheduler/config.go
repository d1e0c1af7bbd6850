// Package scheduler dispatches auto-executed tasks with worker pool limits.
package scheduler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent executions across all agents.
	GlobalMax int `yaml:"global_max"`
	// PerAgent is the maximum number of concurrent executions per agent.
	PerAgent int `yaml:"per_agent"`
	// PollInterval is how often the scheduler scans for dispatchable tasks.
	PollInterval time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the config, accepting poll_interval as a Go duration
// string such as "500ms" or "2s".
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		GlobalMax    int    `yaml:"global_max"`
		PerAgent     int    `yaml:"per_agent"`
		PollInterval string `yaml:"poll_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.GlobalMax != 0 {
		c.GlobalMax = raw.GlobalMax
	}
	if raw.PerAgent != 0 {
		c.PerAgent = raw.PerAgent
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax:    10,
		PerAgent:     1,
		PollInterval: time.Second,
	}
}

// LoadConfig reads a scheduler configuration from a YAML file. Unset fields
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scheduler config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse scheduler config: %w", err)
	}
	if cfg.GlobalMax < 1 {
		cfg.GlobalMax = 1
	}
	if cfg.PerAgent < 1 {
		cfg.PerAgent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return cfg, nil
}
