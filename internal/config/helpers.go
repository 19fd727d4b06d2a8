package config

import (
	"fmt"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"github.com/mitchellh/go-homedir"
)

// ConfigHelpers provides convenient access to global configuration
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// CacheRoot returns the absolute cache root with a leading ~ expanded.
func (c *ConfigHelpers) CacheRoot() (string, error) {
	root, err := homedir.Expand(c.config.CacheRoot)
	if err != nil {
		return "", fmt.Errorf("expanding cache root: %w", err)
	}
	return filepath.Abs(root)
}

// HomeDir returns the invoking user's home directory.
func (c *ConfigHelpers) HomeDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return home, nil
}

// BindMountNamespace returns the directory name under $HOME that holds the
// per-environment bind-mount directories.
func (c *ConfigHelpers) BindMountNamespace() string {
	return c.config.BindMountNamespace
}

// Escalator returns the privilege-escalation command.
func (c *ConfigHelpers) Escalator() string {
	return c.config.Escalator
}

// CowbuilderCommand returns the name passed to the escalator.
func (c *ConfigHelpers) CowbuilderCommand() string {
	return c.config.Cowbuilder.Command
}

// ExtraArgs splits cowbuilder.extraArgs the way a POSIX shell would.
func (c *ConfigHelpers) ExtraArgs() ([]string, error) {
	if c.config.Cowbuilder.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shellquote.Split(c.config.Cowbuilder.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("parsing cowbuilder.extraArgs: %w", err)
	}
	return args, nil
}

// RequiredCommands lists the executables that must exist before any
// environment operation runs.
func (c *ConfigHelpers) RequiredCommands() []string {
	var cmds []string
	if c.config.Escalator != "" {
		cmds = append(cmds, c.config.Escalator)
	}
	path := c.config.Cowbuilder.Path
	if path == "" {
		path = c.config.Cowbuilder.Command
	}
	return append(cmds, path)
}

// DefaultArchitecture returns the architecture used when none is given.
func (c *ConfigHelpers) DefaultArchitecture() string {
	if c.config.DefaultArchitecture == "" {
		return DefaultArchitecture
	}
	return c.config.DefaultArchitecture
}

// FailOnMissing reports whether update/login on a missing environment
// should exit non-zero.
func (c *ConfigHelpers) FailOnMissing() bool {
	return c.config.FailOnMissing
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}
