package app

import (
	"fmt"
	"time"
)

// Config holds all configurable parameters for the application.
type Config struct {
	RootDir   string
	Port      int
	TraceSize int
	LogLevel  string
	// Watch reloads the stubs when files under RootDir change.
	Watch bool

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DefaultEngine string // "" = static, "expr", "jinja2"
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./stubs",
		Port:      8080,
		TraceSize: 200,
		LogLevel:  "info",
		Watch:     true,

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TraceSize <= 0 {
		return fmt.Errorf("trace size must be positive, got %d", c.TraceSize)
	}
	switch c.DefaultEngine {
	case "", "expr", "jinja2":
	default:
		return fmt.Errorf("unknown template engine %q", c.DefaultEngine)
	}
	return nil
}
