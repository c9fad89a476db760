package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/devpulse/internal/stats"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// TemporalMiner tests commit timing against a uniform distribution for each
// calendar dimension.
type TemporalMiner struct {
	store  storage.Storage
	config TemporalConfig
}

// NewTemporalMiner creates a temporal rhythm miner.
func NewTemporalMiner(store storage.Storage, cfg TemporalConfig) *TemporalMiner {
	return &TemporalMiner{store: store, config: cfg}
}

// Name implements Miner.
func (m *TemporalMiner) Name() string { return MinerTemporal }

// Family implements Miner.
func (m *TemporalMiner) Family() types.PatternFamily { return types.FamilyTemporal }

// Mine implements Miner.
func (m *TemporalMiner) Mine(ctx context.Context, in *MineInput) (*MinerResult, error) {
	if in.Activity.TotalCommits() == 0 {
		return &MinerResult{}, nil
	}

	previous, err := m.previousPatterns(ctx, in.Session)
	if err != nil {
		return nil, err
	}

	var patterns []*types.TemporalPattern
	for _, pt := range types.AllTemporalTypes() {
		p := ComputeTemporal(in.Session, pt, in.Activity.Commits, m.config)
		p.Stability = ClassifyStability(p, previous[pt])
		patterns = append(patterns, p)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.UpsertTemporalPatterns(ctx, patterns); err != nil {
		return nil, err
	}
	return &MinerResult{PatternsWritten: len(patterns)}, nil
}

// previousPatterns loads the prior session's temporal patterns by type.
func (m *TemporalMiner) previousPatterns(ctx context.Context, sess *types.DiscoverySession) (map[types.TemporalPatternType]*types.TemporalPattern, error) {
	prev, err := m.store.PreviousSession(ctx, sess.Project, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("finding previous session: %w", err)
	}
	out := make(map[types.TemporalPatternType]*types.TemporalPattern)
	if prev == nil {
		return out, nil
	}
	list, err := m.store.ListTemporalPatterns(ctx, types.PatternFilter{Project: sess.Project, SessionID: prev.ID})
	if err != nil {
		return nil, fmt.Errorf("loading previous temporal patterns: %w", err)
	}
	for _, p := range list {
		out[p.PatternType] = p
	}
	return out, nil
}

// BucketCount returns the number of buckets of a temporal dimension.
func BucketCount(pt types.TemporalPatternType) int {
	switch pt {
	case types.TemporalHourly:
		return 24
	case types.TemporalDaily:
		return 7
	case types.TemporalWeekly:
		return 5
	case types.TemporalMonthly:
		return 12
	case types.TemporalSeasonal:
		return 4
	}
	return 0
}

// Bucket maps a commit time (UTC) to its bucket index. Days run Monday=0
// through Sunday=6; seasons are meteorological starting with winter.
func Bucket(pt types.TemporalPatternType, t time.Time) int {
	t = t.UTC()
	switch pt {
	case types.TemporalHourly:
		return t.Hour()
	case types.TemporalDaily:
		return (int(t.Weekday()) + 6) % 7
	case types.TemporalWeekly:
		return (t.Day() - 1) / 7
	case types.TemporalMonthly:
		return int(t.Month()) - 1
	case types.TemporalSeasonal:
		return (int(t.Month()) % 12) / 3
	}
	return 0
}

// ComputeTemporal builds the pattern for one dimension. Stability is left
// for the caller, which knows the previous session.
func ComputeTemporal(sess *types.DiscoverySession, pt types.TemporalPatternType, commits []*types.Commit, cfg TemporalConfig) *types.TemporalPattern {
	observed := make([]int, BucketCount(pt))
	for _, c := range commits {
		observed[Bucket(pt, c.AuthorDate)]++
	}

	chi := stats.ChiSquareUniform(observed)
	v := stats.CramersV(chi.Statistic, chi.Total, len(observed))

	asFloat := make([]float64, len(observed))
	for i, o := range observed {
		asFloat[i] = float64(o)
	}
	shape := stats.Describe(asFloat)

	var peaks []int
	for i, o := range observed {
		if o > 0 && float64(o) >= cfg.PeakFactor*chi.Expected[i] {
			peaks = append(peaks, i)
		}
	}

	return &types.TemporalPattern{
		Project:          sess.Project,
		SessionID:        sess.ID,
		PatternType:      pt,
		Observed:         observed,
		Expected:         chi.Expected,
		TotalCommits:     chi.Total,
		ChiSquare:        chi.Statistic,
		DegreesOfFreedom: chi.DegreesOfFreedom,
		PValue:           chi.PValue,
		StrengthScore:    v,
		Strength:         ClassifyTemporalStrength(v, chi.PValue, cfg.SignificanceLevel),
		CoefficientOfVar: shape.CV,
		Skewness:         shape.Skewness,
		Kurtosis:         shape.Kurtosis,
		PeakBuckets:      peaks,
		Stability:        types.StabilityEmerging,
	}
}

// ClassifyTemporalStrength bands Cramér's V, treating a non-significant test
// as weak regardless of effect size.
func ClassifyTemporalStrength(v, pValue, alpha float64) types.PatternStrength {
	if pValue >= alpha {
		return types.StrengthWeak
	}
	switch {
	case v >= 0.5:
		return types.StrengthVeryStrong
	case v >= 0.3:
		return types.StrengthStrong
	case v >= 0.15:
		return types.StrengthModerate
	}
	return types.StrengthWeak
}

// ClassifyStability compares a pattern with the previous session's pattern
// of the same type.
func ClassifyStability(current, previous *types.TemporalPattern) types.Stability {
	if previous == nil || previous.TotalCommits == 0 {
		return types.StabilityEmerging
	}

	cur := make([]float64, len(current.Observed))
	for i, o := range current.Observed {
		cur[i] = float64(o)
	}
	prev := make([]float64, len(previous.Observed))
	for i, o := range previous.Observed {
		prev[i] = float64(o)
	}
	if stats.TotalVariation(cur, prev) > 0.3 {
		return types.StabilityVolatile
	}

	delta := current.StrengthScore - previous.StrengthScore
	switch {
	case delta > 0.05:
		return types.StabilityEmerging
	case delta < -0.05:
		return types.StabilityDeclining
	}
	return types.StabilityStable
}
