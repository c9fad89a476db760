package config

import (
	"fmt"
	"time"
)

// StaleSessionConfig holds configuration for failing discovery sessions
// left running by a process that died mid-run
type StaleSessionConfig struct {
	// StaleAfterHours is how long a session may stay running or refreshing
	// before the scheduler marks it failed (in hours)
	// Default: 2, Range: 0-168
	// 0 = never fail stale sessions
	StaleAfterHours int `yaml:"stale_after_hours"`

	// CheckIntervalMinutes is how often the scheduler looks for stale sessions
	// Default: 15, Range: 1-1440
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
}

// DefaultStaleSessionConfig returns the default stale session configuration
//
// A run is bounded by the discovery session timeout (minutes), so a session
// still running after two hours has lost its process.
func DefaultStaleSessionConfig() StaleSessionConfig {
	return StaleSessionConfig{
		StaleAfterHours:      2,
		CheckIntervalMinutes: 15,
	}
}

// Validate checks if the configuration has valid values
func (c StaleSessionConfig) Validate() error {
	if c.StaleAfterHours < 0 || c.StaleAfterHours > 168 {
		return fmt.Errorf("stale_after_hours must be between 0 and 168 (got %d)", c.StaleAfterHours)
	}
	if c.CheckIntervalMinutes < 1 || c.CheckIntervalMinutes > 1440 {
		return fmt.Errorf("check_interval_minutes must be between 1 and 1440 (got %d)", c.CheckIntervalMinutes)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c StaleSessionConfig) String() string {
	return fmt.Sprintf(
		"StaleSessionConfig{StaleAfterHours: %d, CheckInterval: %dm}",
		c.StaleAfterHours, c.CheckIntervalMinutes,
	)
}

// StaleAfter returns the age threshold as a time.Duration (0 = disabled)
func (c StaleSessionConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHours) * time.Hour
}

// CheckInterval returns how often stale sessions are checked
func (c StaleSessionConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// applyEnv overrides c from environment variables
//
// Environment variables:
//   - DEVPULSE_STALE_SESSION_HOURS: Hours before a running session is failed (default: 2)
//   - DEVPULSE_STALE_SESSION_CHECK_MINUTES: Minutes between checks (default: 15)
//
// Returns an error if any environment variable has an invalid value.
func (c *StaleSessionConfig) applyEnv() error {
	if err := parseEnvInt("DEVPULSE_STALE_SESSION_HOURS", &c.StaleAfterHours); err != nil {
		return err
	}
	if err := parseEnvInt("DEVPULSE_STALE_SESSION_CHECK_MINUTES", &c.CheckIntervalMinutes); err != nil {
		return err
	}
	return nil
}
