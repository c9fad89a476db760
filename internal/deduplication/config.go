package deduplication

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for alert deduplication
type Config struct {
	// Enabled turns deduplication on. When false every qualifying metric
	// write opens a new alert.
	// Default: true
	Enabled bool

	// Window is the longest gap between sightings for a repeat to count
	// toward escalation. It is measured against the alert's last_seen_at.
	// Repeats after a longer gap are still merged, without escalating.
	// Default: 24 hours
	Window time.Duration

	// EscalateEvery raises the escalation level of a repeating alert each
	// time its similar count reaches a multiple of this value.
	// 0 disables repeat-based escalation.
	// Default: 3
	EscalateEvery int

	// MaxEscalationLevel caps escalation (never above types.MaxEscalationLevel).
	// Default: 3
	MaxEscalationLevel int

	// BumpSeverity raises severity one band on every escalation.
	// Default: true
	BumpSeverity bool
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Window:             24 * time.Hour,
		EscalateEvery:      3,
		MaxEscalationLevel: 3,
		BumpSeverity:       true,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive (got %v)", c.Window)
	}
	if c.Window > 30*24*time.Hour {
		return fmt.Errorf("window too large (got %v, max 30 days)", c.Window)
	}
	if c.EscalateEvery < 0 {
		return fmt.Errorf("escalate_every cannot be negative (got %d)", c.EscalateEvery)
	}
	if c.EscalateEvery > 1000 {
		return fmt.Errorf("escalate_every too large (got %d, max 1000)", c.EscalateEvery)
	}
	if c.MaxEscalationLevel < 0 || c.MaxEscalationLevel > 3 {
		return fmt.Errorf("max_escalation_level must be between 0 and 3 (got %d)", c.MaxEscalationLevel)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Enabled: %t, Window: %v, EscalateEvery: %d, MaxEscalation: %d, BumpSeverity: %t}",
		c.Enabled, c.Window, c.EscalateEvery, c.MaxEscalationLevel, c.BumpSeverity,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - DEVPULSE_DEDUP_ENABLED: Merge repeating alerts (default: true)
//   - DEVPULSE_DEDUP_WINDOW_HOURS: Similarity window in hours (default: 24)
//   - DEVPULSE_DEDUP_ESCALATE_EVERY: Repeats per escalation step (default: 3)
//   - DEVPULSE_DEDUP_MAX_ESCALATION: Highest escalation level (default: 3)
//   - DEVPULSE_DEDUP_BUMP_SEVERITY: Raise severity on escalation (default: true)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overrides cfg with any DEVPULSE_DEDUP_* variables that are set.
func ApplyEnv(cfg Config) (Config, error) {
	if err := parseEnvBool("DEVPULSE_DEDUP_ENABLED", &cfg.Enabled); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("DEVPULSE_DEDUP_WINDOW_HOURS", &cfg.Window, time.Hour); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEVPULSE_DEDUP_ESCALATE_EVERY", &cfg.EscalateEvery); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEVPULSE_DEDUP_MAX_ESCALATION", &cfg.MaxEscalationLevel); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("DEVPULSE_DEDUP_BUMP_SEVERITY", &cfg.BumpSeverity); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
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

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for hours: multiplier = time.Hour)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
