package config

import (
	"fmt"
	"strconv"
	"time"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

type envSetter func(cfg *Config, val string) error

func setString(dst func(*Config) *string) envSetter {
	return func(cfg *Config, val string) error {
		*dst(cfg) = val
		return nil
	}
}

func setInt(dst func(*Config) *int) envSetter {
	return func(cfg *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func setBool(dst func(*Config) *bool) envSetter {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

// envMapping maps variable names, without EnvPrefix, to settings.
var envMapping = map[string]envSetter{
	"LOG_LEVEL":      setString(func(c *Config) *string { return &c.Logging.Level }),
	"LOG_FORMAT":     setString(func(c *Config) *string { return &c.Logging.Format }),
	"LOG_PREFIX":     setString(func(c *Config) *string { return &c.Logging.Prefix }),
	"LOG_TIMESTAMPS": setBool(func(c *Config) *bool { return &c.Logging.Timestamps }),

	"HISTORY_MAX_ENTRIES":      setInt(func(c *Config) *int { return &c.History.MaxEntries }),
	"HISTORY_COMPACTION_DEPTH": setInt(func(c *Config) *int { return &c.History.CompactionDepth }),

	"DISPATCH_TIMEOUT": func(c *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		c.Dispatch.Timeout = Duration{d}
		return nil
	},
	"DISPATCH_METRICS": setBool(func(c *Config) *bool { return &c.Dispatch.Metrics }),

	"STORAGE_PATH":              setString(func(c *Config) *string { return &c.Storage.Path }),
	"STORAGE_COMPRESSION_LEVEL": setInt(func(c *Config) *int { return &c.Storage.CompressionLevel }),

	"HOOKS_SCRIPT": setString(func(c *Config) *string { return &c.Hooks.Script }),
}

// ApplyEnv overrides settings from DOCFORGE_* variables.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for name, set := range envMapping {
		val, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(cfg, val); err != nil {
			return fmt.Errorf("environment %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}
