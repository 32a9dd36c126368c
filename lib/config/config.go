// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for harmonyd.
//
// Configuration is loaded from a single file specified by:
//   - HARMONYD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for harmonyd: the "configuration
// source" collaborator the session manager reads its tunables from,
// plus the ambient fields the daemon and its clients need.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// ListenAddress is the TCP address the music-protocol listener
	// binds, e.g. "127.0.0.1:6600".
	ListenAddress string `yaml:"listen_address"`

	// AdminSocketPath is the Unix socket the CBOR admin snapshot
	// protocol listens on. Empty disables it.
	AdminSocketPath string `yaml:"admin_socket_path"`

	// HistoryDir is where the session activity history log flushes
	// compressed segment files. Empty disables disk flush; the
	// in-memory ring still records events.
	HistoryDir string `yaml:"history_dir"`

	// ConnectionTimeout is the inactivity interval, in seconds, after
	// which a non-idle-waiting session is closed.
	ConnectionTimeout int `yaml:"connection_timeout"`

	// MaxConnections is the live-session cap enforced at accept time.
	MaxConnections int `yaml:"max_connections"`

	// MaxCommandListSizeKB is the command-list accumulator's size
	// limit, in KiB.
	MaxCommandListSizeKB int `yaml:"max_command_list_size_kb"`

	// MaxOutputBufferSizeKB is the deferred output queue's size limit,
	// in KiB.
	MaxOutputBufferSizeKB int `yaml:"max_output_buffer_size_kb"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	ListenAddress         string `yaml:"listen_address,omitempty"`
	AdminSocketPath       string `yaml:"admin_socket_path,omitempty"`
	HistoryDir            string `yaml:"history_dir,omitempty"`
	ConnectionTimeout     int    `yaml:"connection_timeout,omitempty"`
	MaxConnections        int    `yaml:"max_connections,omitempty"`
	MaxCommandListSizeKB  int    `yaml:"max_command_list_size_kb,omitempty"`
	MaxOutputBufferSizeKB int    `yaml:"max_output_buffer_size_kb,omitempty"`
}

// Default returns the default configuration: connection_timeout=60s,
// max_connections=10, max_command_list_size=2048 KiB,
// max_output_buffer_size=8192 KiB. These defaults are used as a base
// before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment:           Development,
		ListenAddress:         "127.0.0.1:6600",
		AdminSocketPath:       "",
		HistoryDir:            "",
		ConnectionTimeout:     60,
		MaxConnections:        10,
		MaxCommandListSizeKB:  2048,
		MaxOutputBufferSizeKB: 8192,
	}
}

// Load loads configuration from the HARMONYD_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if HARMONYD_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("HARMONYD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("HARMONYD_CONFIG environment variable not set; " +
			"set it to the path of your harmonyd.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: with no production section in the
		// file, the connection cap becomes 64, replacing any base
		// max_connections value.
		if overrides == nil {
			overrides = &ConfigOverrides{MaxConnections: 64}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.ListenAddress != "" {
		c.ListenAddress = overrides.ListenAddress
	}
	if overrides.AdminSocketPath != "" {
		c.AdminSocketPath = overrides.AdminSocketPath
	}
	if overrides.HistoryDir != "" {
		c.HistoryDir = overrides.HistoryDir
	}
	if overrides.ConnectionTimeout != 0 {
		c.ConnectionTimeout = overrides.ConnectionTimeout
	}
	if overrides.MaxConnections != 0 {
		c.MaxConnections = overrides.MaxConnections
	}
	if overrides.MaxCommandListSizeKB != 0 {
		c.MaxCommandListSizeKB = overrides.MaxCommandListSizeKB
	}
	if overrides.MaxOutputBufferSizeKB != 0 {
		c.MaxOutputBufferSizeKB = overrides.MaxOutputBufferSizeKB
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.AdminSocketPath = expandVars(c.AdminSocketPath, vars)
	c.HistoryDir = expandVars(c.HistoryDir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every numeric tunable
// must parse as a positive integer or startup fails.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("listen_address is required"))
	}
	if c.ConnectionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connection_timeout must be positive, got %d", c.ConnectionTimeout))
	}
	if c.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections))
	}
	if c.MaxCommandListSizeKB <= 0 {
		errs = append(errs, fmt.Errorf("max_command_list_size_kb must be positive, got %d", c.MaxCommandListSizeKB))
	}
	if c.MaxOutputBufferSizeKB <= 0 {
		errs = append(errs, fmt.Errorf("max_output_buffer_size_kb must be positive, got %d", c.MaxOutputBufferSizeKB))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureHistoryDir creates the configured history directory if it
// doesn't exist. A no-op when HistoryDir is empty (disk flush
// disabled).
func (c *Config) EnsureHistoryDir() error {
	if c.HistoryDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.HistoryDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.HistoryDir, err)
	}
	return nil
}

// MaxCommandListSizeBytes returns the command-list byte limit.
func (c *Config) MaxCommandListSizeBytes() int { return c.MaxCommandListSizeKB * 1024 }

// MaxOutputBufferSizeBytes returns the deferred-output byte limit.
func (c *Config) MaxOutputBufferSizeBytes() int { return c.MaxOutputBufferSizeKB * 1024 }
