package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EventRetentionConfig holds configuration for audit event cleanup
type EventRetentionConfig struct {
	// RetentionDays is the retention period for audit events (in days)
	// Events older than this are eligible for deletion
	// Default: 90, Range: 1-730
	RetentionDays int `yaml:"retention_days"`

	// CleanupIntervalHours is how often the scheduler runs cleanup (in hours)
	// Default: 24, Range: 1-168 (1 week)
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`

	// CleanupEnabled controls whether automatic cleanup is enabled
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

// DefaultEventRetentionConfig returns the default event retention configuration
//
// Lifecycle events are low volume (one per session, insight or alert
// transition), so a quarter of history is kept and pruned once a day.
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:        90,
		CleanupIntervalHours: 24,
		CleanupEnabled:       true,
	}
}

// Validate checks if the configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 730 {
		return fmt.Errorf("retention_days must be between 1 and 730 (got %d)", c.RetentionDays)
	}
	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)",
			c.CleanupIntervalHours)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c EventRetentionConfig) String() string {
	return fmt.Sprintf(
		"EventRetentionConfig{RetentionDays: %d, CleanupInterval: %dh, Enabled: %t}",
		c.RetentionDays, c.CleanupIntervalHours, c.CleanupEnabled,
	)
}

// Retention returns the retention period as a time.Duration
func (c EventRetentionConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * day
}

// CleanupInterval returns how often cleanup runs, or 0 when disabled
func (c EventRetentionConfig) CleanupInterval() time.Duration {
	if !c.CleanupEnabled {
		return 0
	}
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// applyEnv overrides c from environment variables
//
// Environment variables:
//   - DEVPULSE_EVENT_RETENTION_DAYS: Retention period for events in days (default: 90)
//   - DEVPULSE_EVENT_CLEANUP_INTERVAL_HOURS: How often to run cleanup in hours (default: 24)
//   - DEVPULSE_EVENT_CLEANUP_ENABLED: Enable automatic cleanup (default: true)
//
// Returns an error if any environment variable has an invalid value.
func (c *EventRetentionConfig) applyEnv() error {
	if err := parseEnvInt("DEVPULSE_EVENT_RETENTION_DAYS", &c.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("DEVPULSE_EVENT_CLEANUP_INTERVAL_HOURS", &c.CleanupIntervalHours); err != nil {
		return err
	}
	if err := parseEnvBool("DEVPULSE_EVENT_CLEANUP_ENABLED", &c.CleanupEnabled); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvDuration parses a day-aware duration from an environment variable
func parseEnvDuration(key string, dest *Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = Duration(parsed)
	return nil
}
