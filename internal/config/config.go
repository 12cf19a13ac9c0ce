// Package config reads the qtensor configuration file
// (~/.config/qtensor/config.yaml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qtensor/internal/backend"
)

// Config mirrors the file. Pointer fields distinguish "not set" from zero.
type Config struct {
	// Dispatch
	Threads           *int   `yaml:"threads"`
	Backend           string `yaml:"backend"`
	ParallelThreshold *int   `yaml:"parallel_threshold"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	Metrics       *bool  `yaml:"metrics"`
}

// Path returns the default location of the file, or "" when the user config
// directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qtensor", "config.yaml")
}

// Load reads path. A missing file yields a zero Config and no error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", *c.Threads)
	}
	if c.ParallelThreshold != nil && *c.ParallelThreshold < 0 {
		return fmt.Errorf("parallel_threshold must not be negative, got %d", *c.ParallelThreshold)
	}
	if _, err := backend.ParseKind(c.Backend); err != nil {
		return err
	}
	return nil
}

// Dispatch overlays the file on base. Unset fields keep base values.
func (c Config) Dispatch(base backend.Config) backend.Config {
	if c.Threads != nil && *c.Threads > 0 {
		base.Threads = *c.Threads
	}
	if k, err := backend.ParseKind(c.Backend); err == nil && c.Backend != "" {
		base.Backend = k
	}
	if c.ParallelThreshold != nil && *c.ParallelThreshold > 0 {
		base.ParallelThreshold = *c.ParallelThreshold
	}
	return base
}
