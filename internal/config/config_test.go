package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestDecodeTOML(t *testing.T) {
	src := `
[logging]
level = "debug"
format = "json"

[history]
max_entries = 50

[dispatch]
timeout = "2m"
metrics = false

[storage]
path = "/var/lib/docforge/graph.db"
compression_level = 9

[hooks]
script = "policy.lua"
`
	cfg := Default()
	if err := Decode("docforge.toml", strings.NewReader(src), cfg); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := Default()
	want.Logging.Level = "debug"
	want.Logging.Format = "json"
	want.History.MaxEntries = 50
	want.Dispatch.Timeout = Duration{2 * time.Minute}
	want.Dispatch.Metrics = false
	want.Storage = StorageConfig{Path: "/var/lib/docforge/graph.db", CompressionLevel: 9}
	want.Hooks.Script = "policy.lua"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
logging:
  level: warn
history:
  compaction_depth: 10
dispatch:
  timeout: 500ms
`
	cfg := Default()
	if err := Decode("docforge.yaml", strings.NewReader(src), cfg); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.History.CompactionDepth != 10 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Dispatch.Timeout.Duration != 500*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Dispatch.Timeout)
	}
	if cfg.History.MaxEntries != 1000 {
		t.Error("unset keys should keep their defaults")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		src  string
	}{
		{"toml syntax", "c.toml", "[logging\nlevel = 1"},
		{"toml unknown key", "c.toml", "[logging]\ncolour = true"},
		{"yaml unknown key", "c.yml", "logging:\n  colour: true"},
		{"bad duration", "c.toml", "[dispatch]\ntimeout = \"soon\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.file, strings.NewReader(tt.src), Default())
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Decode() = %v, want *ParseError", err)
			}
			if pe.Path != tt.file {
				t.Errorf("Path = %q", pe.Path)
			}
		})
	}

	if err := Decode("c.ini", strings.NewReader(""), Default()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestTOMLParseErrorPosition(t *testing.T) {
	err := Decode("c.toml", strings.NewReader("[history]\nmax_entries = = 3"), Default())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Line != 2 {
		t.Errorf("Line = %d, want 2", pe.Line)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DOCFORGE_LOG_LEVEL":           "error",
		"DOCFORGE_HISTORY_MAX_ENTRIES": "7",
		"DOCFORGE_DISPATCH_TIMEOUT":    "1s",
		"DOCFORGE_DISPATCH_METRICS":    "false",
		"DOCFORGE_STORAGE_PATH":        "graph.db",
		"UNRELATED":                    "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "error" || cfg.History.MaxEntries != 7 || cfg.Storage.Path != "graph.db" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Dispatch.Timeout.Duration != time.Second || cfg.Dispatch.Metrics {
		t.Errorf("dispatch not overridden: %+v", cfg.Dispatch)
	}

	env["DOCFORGE_HISTORY_MAX_ENTRIES"] = "many"
	if err := ApplyEnv(Default(), lookup); err == nil || !strings.Contains(err.Error(), "DOCFORGE_HISTORY_MAX_ENTRIES") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"logging.level", func(c *Config) { c.Logging.Level = "loud" }},
		{"logging.format", func(c *Config) { c.Logging.Format = "xml" }},
		{"history.max_entries", func(c *Config) { c.History.MaxEntries = -1 }},
		{"history.compaction_depth", func(c *Config) { c.History.CompactionDepth = -1 }},
		{"dispatch.timeout", func(c *Config) { c.Dispatch.Timeout = Duration{-time.Second} }},
		{"storage.compression_level", func(c *Config) { c.Storage.CompressionLevel = 23 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			var ve *ValidationError
			if err := cfg.Validate(); !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docforge.toml", "[history]\nmax_entries = 12\n")
	t.Setenv("DOCFORGE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History.MaxEntries != 12 || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeFile(t, dir, "bad.toml", "[history]\nmax_entries = -5\n")
	if _, err := Load(bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.History.MaxEntries != Default().History.MaxEntries {
		t.Errorf("MaxEntries = %d", cfg.History.MaxEntries)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docforge.toml", "[history]\nmax_entries = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	err := Watch(ctx, path, func(cfg *Config, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, dir, "other.toml", "ignored")
	writeFile(t, dir, "docforge.toml", "[history]\nmax_entries = 99\n")

	select {
	case cfg := <-changes:
		if cfg.History.MaxEntries != 99 {
			t.Errorf("reloaded MaxEntries = %d, want 99", cfg.History.MaxEntries)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after change")
	}
}

func TestLoggingOptions(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "json"
	opts := cfg.LoggingOptions()
	if opts.Format != "json" || opts.Prefix != "docforge" || opts.Output == nil {
		t.Errorf("unexpected options %+v", opts)
	}
}
