// Package config defines the wareply configuration, loaded from YAML with
// environment variable expansion and .env support.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level wareply configuration.
type Config struct {
	// SessionsDir is the root directory scanned for session folders.
	// Each folder named auth_info_<name> holds one account's credentials.
	SessionsDir string `yaml:"sessions_dir"`

	// DataDir is the root directory for per-session persona records
	// (assistant name, owner, offline reason).
	DataDir string `yaml:"data_dir"`

	// StatusFile is the path of the shared online-flag record.
	StatusFile string `yaml:"status_file"`

	// DeviceName is shown in the WhatsApp linked devices list.
	DeviceName string `yaml:"device_name"`

	// Timezone is the IANA timezone used for greeting bands and
	// offline-reason timestamps (e.g. "Asia/Jakarta").
	Timezone string `yaml:"timezone"`

	// CooldownWindow is the minimum gap between two auto-replies to the
	// same conversation key.
	CooldownWindow time.Duration `yaml:"cooldown_window"`

	// Reconnect configures the supervisor restart policy.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Panel configures the HTTP status panel.
	Panel PanelConfig `yaml:"panel"`

	// Logging configures the slog handler.
	Logging LoggingConfig `yaml:"logging"`
}

// ReconnectConfig controls the backoff applied between restarts of a
// session whose connection dropped with a retryable reason.
type ReconnectConfig struct {
	// InitialBackoff is the delay before the first restart attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the delay between restart attempts.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxElapsed stops retrying after this much total time (0 = forever).
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// PanelConfig configures the web status panel.
type PanelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SessionsDir:    "./sessions",
		DataDir:        "./id",
		StatusFile:     "./status.json",
		DeviceName:     "Wareply",
		Timezone:       "Asia/Jakarta",
		CooldownWindow: 5 * time.Minute,
		Reconnect: ReconnectConfig{
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
			MaxElapsed:     0,
		},
		Panel: PanelConfig{
			Enabled: true,
			Addr:    ":3000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks config invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.SessionsDir == "" {
		return fmt.Errorf("sessions_dir must not be empty")
	}
	if c.CooldownWindow <= 0 {
		return fmt.Errorf("cooldown_window must be positive, got %s", c.CooldownWindow)
	}
	if c.Reconnect.InitialBackoff <= 0 {
		return fmt.Errorf("reconnect.initial_backoff must be positive, got %s", c.Reconnect.InitialBackoff)
	}
	if c.Panel.Enabled && c.Panel.Addr == "" {
		return fmt.Errorf("panel.addr must not be empty when the panel is enabled")
	}
	return nil
}

// Location resolves the configured timezone, falling back to time.Local
// when the name is empty or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
