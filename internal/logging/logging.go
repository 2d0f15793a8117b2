// Package logging configures the structured logger shared by the engine's
// components.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatLogfmt = "logfmt"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum level to output: debug, info, warn or error.
	Level string
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is prepended to all log messages.
	Prefix string
	// Format is one of FormatText, FormatJSON or FormatLogfmt.
	Format string
	// Timestamps adds a timestamp to every entry.
	Timestamps bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Output:     os.Stderr,
		Prefix:     "docforge",
		Format:     FormatText,
		Timestamps: true,
	}
}

// ParseLevel parses a level name. "warning" is accepted for "warn".
func ParseLevel(s string) (log.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func formatter(name string) (log.Formatter, error) {
	switch strings.ToLower(name) {
	case "", FormatText:
		return log.TextFormatter, nil
	case FormatJSON:
		return log.JSONFormatter, nil
	case FormatLogfmt:
		return log.LogfmtFormatter, nil
	}
	return log.TextFormatter, fmt.Errorf("invalid log format %q", name)
}

// New creates a logger from cfg.
func New(cfg Config) (*log.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	f, err := formatter(cfg.Format)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           lvl,
		Prefix:          cfg.Prefix,
		ReportTimestamp: cfg.Timestamps,
		Formatter:       f,
	}), nil
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(l *log.Logger, component string) *log.Logger {
	return l.With("component", component)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
