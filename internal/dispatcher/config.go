package dispatcher

import "time"

// Config holds engine configuration options.
type Config struct {
	// Timeout bounds a single processor call. Zero means no timeout.
	Timeout time.Duration

	// RecoverFromPanic turns processor panics into failed operations.
	RecoverFromPanic bool

	// MaxRecords caps the number of operations kept for Operations and
	// Retry. The oldest records are forgotten first.
	MaxRecords int

	// Source is the event source name used for published events.
	Source string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecoverFromPanic: true,
		MaxRecords:       10000,
		Source:           "dispatcher",
	}
}

// WithTimeout returns a copy of the config with the processor timeout set.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}

// WithMaxRecords returns a copy of the config with the record cap set.
func (c Config) WithMaxRecords(max int) Config {
	c.MaxRecords = max
	return c
}
