// Copyright 2026 The Slipway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for slipway binaries.
//
// Configuration is loaded from a single YAML file specified by the
// SLIPWAY_CONFIG environment variable or the --config flag. There are
// no search paths or automatic discovery: deterministic, auditable
// configuration with no hidden overrides. Every field has a default,
// so running with no file at all is valid.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that points at the config
// file when --config is not given.
const EnvVar = "SLIPWAY_CONFIG"

// Config is the controller configuration.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Router configures the public reverse proxy.
	Router RouterConfig `yaml:"router"`

	// Ports configures the numeric port allocation range.
	Ports PortsConfig `yaml:"ports"`

	// Health configures the periodic health sweep.
	Health HealthConfig `yaml:"health"`

	// Jail configures the isolation wrapper for run commands.
	Jail JailConfig `yaml:"jail"`

	// ProfilesFile optionally points at a YAML file of runtime
	// profiles that override the builtins.
	ProfilesFile string `yaml:"profiles_file"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Apps is the base directory holding one worktree per deployment
	// name.
	Apps string `yaml:"apps"`

	// Run is the runtime directory: the control socket and state
	// snapshot live at its top level, service sockets under its
	// sockets/ subdirectory.
	Run string `yaml:"run"`
}

// RouterConfig configures the public reverse proxy.
type RouterConfig struct {
	// Listen is the public listen address.
	Listen string `yaml:"listen"`

	// UpstreamTimeout bounds each forwarded request.
	UpstreamTimeout Duration `yaml:"upstream_timeout"`
}

// PortsConfig configures the numeric port range handed to services
// whose runtime cannot bind a filesystem socket.
type PortsConfig struct {
	// First is the lowest port in the range.
	First int `yaml:"first"`

	// Limit is one past the highest port in the range.
	Limit int `yaml:"limit"`
}

// HealthConfig configures the periodic health sweep.
type HealthConfig struct {
	// Interval between sweeps over all registered services.
	Interval Duration `yaml:"interval"`
}

// JailConfig configures the isolation wrapper.
type JailConfig struct {
	// Binary is the path to slipway-jail. Empty means auto-detect
	// next to the controller binary.
	Binary string `yaml:"binary"`

	// Disabled turns jail wrapping off entirely. Intended for
	// development hosts without user-namespace support.
	Disabled bool `yaml:"disabled"`
}

// Default returns the configuration used when no file and no flags
// override it.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Apps: "/var/lib/slipway/apps",
			Run:  "/run/slipway",
		},
		Router: RouterConfig{
			Listen:          ":80",
			UpstreamTimeout: Duration(30 * time.Second),
		},
		Ports: PortsConfig{
			First: 40000,
			Limit: 50000,
		},
		Health: HealthConfig{
			Interval: Duration(30 * time.Second),
		},
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Load resolves the config: the explicit path when non-empty, else
// the SLIPWAY_CONFIG environment variable, else the defaults.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		return &cfg, nil
	}
	return LoadFile(path)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Paths.Apps == "" {
		return fmt.Errorf("paths.apps must not be empty")
	}
	if c.Paths.Run == "" {
		return fmt.Errorf("paths.run must not be empty")
	}
	if c.Ports.First <= 0 || c.Ports.Limit <= c.Ports.First {
		return fmt.Errorf("ports range [%d, %d) is invalid", c.Ports.First, c.Ports.Limit)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	if c.Router.UpstreamTimeout <= 0 {
		return fmt.Errorf("router.upstream_timeout must be positive")
	}
	return nil
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
