package discovery

import (
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"github.com/steveyegge/devpulse/internal/activity"
)

// DefaultAlgorithmVersion is recorded on sessions when the request does not
// name one. Bump it whenever a miner's output for the same input changes.
const DefaultAlgorithmVersion = "v1.0.0"

// Config defines the full discovery configuration.
type Config struct {
	// Preset to use (quick/standard/custom)
	Preset Preset

	// Miners to run when Preset is custom
	Miners []string

	// AlgorithmVersion stamped on new sessions (semver, e.g. "v1.2.0")
	AlgorithmVersion string

	// MaxParallel bounds how many miners run at once
	MaxParallel int

	// SessionTimeout cancels a run that takes longer; the session is failed
	SessionTimeout time.Duration

	Loader       activity.LoaderConfig
	Cooccurrence CooccurrenceConfig
	Temporal     TemporalConfig
	Developer    DeveloperConfig
	Magnitude    MagnitudeConfig
}

// CooccurrenceConfig tunes market-basket mining.
type CooccurrenceConfig struct {
	// MinCooccurrence drops pairs seen together fewer times
	MinCooccurrence int

	// MaxFilesPerCommit skips pair generation for bulk commits (renames,
	// vendoring). Such commits still count toward the commit total.
	MaxFilesPerCommit int
}

// TemporalConfig tunes rhythm analysis.
type TemporalConfig struct {
	SignificanceLevel float64
	PeakFactor        float64
}

// DeveloperConfig tunes developer profiling.
type DeveloperConfig struct {
	// A file is a specialty when the developer made at least SpecialtyShare
	// of its changes and touched it SpecialtyMinChanges times.
	SpecialtyShare      float64
	SpecialtyMinChanges int
	MaxSpecialtyFiles   int
}

// MagnitudeConfig tunes change-magnitude scoring and trend classification.
type MagnitudeConfig struct {
	TrendSignificance float64
	MinHistoryPoints  int
}

// DefaultConfig returns the default discovery configuration.
func DefaultConfig() *Config {
	return &Config{
		Preset:           PresetStandard,
		AlgorithmVersion: DefaultAlgorithmVersion,
		MaxParallel:      4,
		SessionTimeout:   10 * time.Minute,
		Loader:           activity.DefaultLoaderConfig(),
		Cooccurrence: CooccurrenceConfig{
			MinCooccurrence:   1,
			MaxFilesPerCommit: 200,
		},
		Temporal: TemporalConfig{
			SignificanceLevel: 0.05,
			PeakFactor:        1.5,
		},
		Developer: DeveloperConfig{
			SpecialtyShare:      0.5,
			SpecialtyMinChanges: 2,
			MaxSpecialtyFiles:   10,
		},
		Magnitude: MagnitudeConfig{
			TrendSignificance: 0.10,
			MinHistoryPoints:  3,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !semver.IsValid(c.AlgorithmVersion) {
		return fmt.Errorf("algorithm_version %q is not a valid semantic version", c.AlgorithmVersion)
	}
	switch c.Preset {
	case PresetQuick, PresetStandard:
	case PresetCustom:
		if len(c.Miners) == 0 {
			return fmt.Errorf("custom preset requires at least one miner")
		}
	default:
		return fmt.Errorf("unknown preset %q", c.Preset)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1 (got %d)", c.MaxParallel)
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("session_timeout must be non-negative (got %v)", c.SessionTimeout)
	}
	if err := c.Loader.Validate(); err != nil {
		return err
	}
	if c.Cooccurrence.MinCooccurrence < 1 {
		return fmt.Errorf("min_cooccurrence must be at least 1 (got %d)", c.Cooccurrence.MinCooccurrence)
	}
	if c.Cooccurrence.MaxFilesPerCommit < 2 {
		return fmt.Errorf("max_files_per_commit must be at least 2 (got %d)", c.Cooccurrence.MaxFilesPerCommit)
	}
	if c.Temporal.SignificanceLevel <= 0 || c.Temporal.SignificanceLevel >= 1 {
		return fmt.Errorf("significance_level must be in (0,1) (got %v)", c.Temporal.SignificanceLevel)
	}
	if c.Temporal.PeakFactor < 1 {
		return fmt.Errorf("peak_factor must be >= 1 (got %v)", c.Temporal.PeakFactor)
	}
	if c.Developer.SpecialtyShare <= 0 || c.Developer.SpecialtyShare > 1 {
		return fmt.Errorf("specialty_share must be in (0,1] (got %v)", c.Developer.SpecialtyShare)
	}
	if c.Magnitude.TrendSignificance <= 0 || c.Magnitude.TrendSignificance >= 1 {
		return fmt.Errorf("trend_significance must be in (0,1) (got %v)", c.Magnitude.TrendSignificance)
	}
	if c.Magnitude.MinHistoryPoints < 3 {
		return fmt.Errorf("min_history_points must be at least 3 (got %d)", c.Magnitude.MinHistoryPoints)
	}
	return nil
}

// MinerNames returns the miners the configuration selects.
func (c *Config) MinerNames() []string {
	if c.Preset == PresetCustom {
		return c.Miners
	}
	return PresetMiners(c.Preset)
}

// CheckAlgorithmVersion validates a requested algorithm version.
func CheckAlgorithmVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("algorithm version %q is not a valid semantic version", v)
	}
	return nil
}
