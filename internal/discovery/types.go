package discovery

import (
	"context"
	"time"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/types"
)

// Miner defines the interface for pattern miners.
//
// Each miner owns exactly one pattern family and writes only rows of that
// family scoped to the session it is handed. Miners are independent of each
// other and run concurrently over the same immutable activity snapshot, so
// they must not mutate the snapshot or share state.
type Miner interface {
	// Name returns the unique identifier for this miner.
	// Example: "cooccurrence", "temporal"
	Name() string

	// Family returns the pattern family this miner writes.
	Family() types.PatternFamily

	// Mine analyzes the snapshot and upserts its patterns for the session.
	// Re-running Mine for the same session and snapshot must produce the
	// same rows.
	Mine(ctx context.Context, in *MineInput) (*MinerResult, error)
}

// MineInput is what the coordinator hands every miner.
type MineInput struct {
	Session  *types.DiscoverySession
	Activity *activity.Snapshot
}

// MinerResult summarizes one miner's run.
type MinerResult struct {
	Miner           string
	Family          types.PatternFamily
	PatternsWritten int
	Duration        time.Duration
	Err             error
}

// Request asks the coordinator for a discovery run.
type Request struct {
	Project          string            `validate:"required"`
	Range            types.CommitRange `validate:"required"`
	AlgorithmVersion string

	// Refresh re-mines an existing completed session for the same range in
	// place instead of returning it unchanged.
	Refresh bool
}

// Result is the outcome of a discovery run.
type Result struct {
	Session *types.DiscoverySession

	// Reused is true when an existing session was returned without mining.
	Reused bool

	// Superseded lists sessions outdated by this run.
	Superseded []string

	Miners           []*MinerResult
	InsightsProduced int
}

// Preset names a predefined set of miners.
type Preset string

const (
	// PresetQuick runs the file-level miners only
	PresetQuick Preset = "quick"

	// PresetStandard runs every built-in miner
	PresetStandard Preset = "standard"

	// PresetCustom uses the configured miner list
	PresetCustom Preset = "custom"
)

// Built-in miner names.
const (
	MinerCooccurrence    = "cooccurrence"
	MinerTemporal        = "temporal"
	MinerDeveloper       = "developer"
	MinerChangeMagnitude = "change_magnitude"
)

// PresetMiners returns the miners a preset runs.
func PresetMiners(preset Preset) []string {
	switch preset {
	case PresetQuick:
		return []string{MinerCooccurrence, MinerChangeMagnitude}
	default:
		return []string{MinerCooccurrence, MinerTemporal, MinerDeveloper, MinerChangeMagnitude}
	}
}
