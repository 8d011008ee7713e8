// Package config provides configuration loading and management for termaudit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete termaudit configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Glossary GlossaryConfig `yaml:"glossary"`
	Scan     ScanConfig     `yaml:"scan"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Review   ReviewConfig   `yaml:"review"`
}

// DatabaseConfig locates the project store
type DatabaseConfig struct {
	// Path is the sqlite file (":memory:" for a throwaway store)
	Path string `yaml:"path"`
}

// GlossaryConfig locates the approved term list
type GlossaryConfig struct {
	// Path is a JSON or YAML glossary file. Empty means the terms stored in
	// the database, or the built-in list when the database has none.
	Path string `yaml:"path"`
}

// ScanConfig tunes the background scanner
type ScanConfig struct {
	// Workers is the number of scan jobs that may run at once
	Workers int `yaml:"workers"`
	// Parallelism splits one scan across this many goroutines (1 = sequential)
	Parallelism int `yaml:"parallelism"`
	// Timeout bounds one scan; a late answer is dropped
	Timeout time.Duration `yaml:"timeout"`
}

// WatchConfig tunes the file watcher
type WatchConfig struct {
	// Debounce is how long a file must stay quiet before a rescan
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// ReviewConfig configures the review workflow
type ReviewConfig struct {
	// Reviewer is stored with every decision
	Reviewer string `yaml:"reviewer"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "termaudit.db"},
		Scan: ScanConfig{
			Workers:     2,
			Parallelism: 1,
			Timeout:     10 * time.Second,
		},
		Watch:   WatchConfig{Debounce: 300 * time.Millisecond},
		Logging: LoggingConfig{Level: "info"},
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Scan.Parallelism <= 0 {
		return fmt.Errorf("scan.parallelism must be positive, got %d", c.Scan.Parallelism)
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be positive, got %s", c.Scan.Timeout)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// loadOverlay parses a YAML file into an empty Config so that only the keys
// present in the file are non-zero.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &c, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Glossary.Path != "" {
		c.Glossary.Path = other.Glossary.Path
	}
	if other.Scan.Workers != 0 {
		c.Scan.Workers = other.Scan.Workers
	}
	if other.Scan.Parallelism != 0 {
		c.Scan.Parallelism = other.Scan.Parallelism
	}
	if other.Scan.Timeout != 0 {
		c.Scan.Timeout = other.Scan.Timeout
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Review.Reviewer != "" {
		c.Review.Reviewer = other.Review.Reviewer
	}
}
