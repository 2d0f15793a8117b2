// Package config loads docforge settings from TOML or YAML files with
// environment overrides, and can watch a file for changes.
//
// Precedence, lowest first: built-in defaults, the config file, DOCFORGE_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/docforge/internal/logging"
)

// Config is the complete engine configuration.
type Config struct {
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	History  HistoryConfig  `toml:"history" yaml:"history"`
	Dispatch DispatchConfig `toml:"dispatch" yaml:"dispatch"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
	Hooks    HooksConfig    `toml:"hooks" yaml:"hooks"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	Prefix     string `toml:"prefix" yaml:"prefix"`
	Timestamps bool   `toml:"timestamps" yaml:"timestamps"`
}

// HistoryConfig configures the undo stack.
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries" yaml:"max_entries"`

	// CompactionDepth is the lineage depth beyond which unpinned files are
	// reported as compaction candidates. Zero disables reporting.
	CompactionDepth int `toml:"compaction_depth" yaml:"compaction_depth"`
}

// DispatchConfig configures operation execution.
type DispatchConfig struct {
	// Timeout bounds a single processor call. Zero means no limit.
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	Metrics bool     `toml:"metrics" yaml:"metrics"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Path of the SQLite database. Empty keeps the graph in memory.
	Path string `toml:"path" yaml:"path"`

	// CompressionLevel is the zstd level for stored content, 1-22.
	// Zero selects the library default.
	CompressionLevel int `toml:"compression_level" yaml:"compression_level"`
}

// HooksConfig configures scripted pre-execute hooks.
type HooksConfig struct {
	// Script is a Lua file defining allow(req). Empty disables the hook.
	Script string `toml:"script" yaml:"script"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     logging.FormatText,
			Prefix:     "docforge",
			Timestamps: true,
		},
		History: HistoryConfig{
			MaxEntries:      1000,
			CompactionDepth: 50,
		},
		Dispatch: DispatchConfig{
			Timeout: Duration{30 * time.Second},
			Metrics: true,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Field: "logging.level", Err: err}
	}
	if _, err := logging.New(logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}); err != nil {
		return &ValidationError{Field: "logging.format", Err: err}
	}
	if c.History.MaxEntries < 0 {
		return &ValidationError{Field: "history.max_entries", Err: fmt.Errorf("must not be negative")}
	}
	if c.History.CompactionDepth < 0 {
		return &ValidationError{Field: "history.compaction_depth", Err: fmt.Errorf("must not be negative")}
	}
	if c.Dispatch.Timeout.Duration < 0 {
		return &ValidationError{Field: "dispatch.timeout", Err: fmt.Errorf("must not be negative")}
	}
	if c.Storage.CompressionLevel < 0 || c.Storage.CompressionLevel > 22 {
		return &ValidationError{Field: "storage.compression_level", Err: fmt.Errorf("must be between 0 and 22")}
	}
	return nil
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() logging.Config {
	out := logging.DefaultConfig()
	out.Level = c.Logging.Level
	out.Format = c.Logging.Format
	out.Prefix = c.Logging.Prefix
	out.Timestamps = c.Logging.Timestamps
	return out
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
