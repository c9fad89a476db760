package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/stats"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/types"
)

// ChangeMagnitudeMiner scores per-file change size, churn and risk, and
// tracks each file's change frequency across sessions for trend detection.
type ChangeMagnitudeMiner struct {
	store  storage.Storage
	config MagnitudeConfig
	logger *slog.Logger
}

// NewChangeMagnitudeMiner creates a change-magnitude miner.
func NewChangeMagnitudeMiner(store storage.Storage, cfg MagnitudeConfig, logger *slog.Logger) *ChangeMagnitudeMiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeMagnitudeMiner{store: store, config: cfg, logger: logger.With("miner", MinerChangeMagnitude)}
}

// Name implements Miner.
func (m *ChangeMagnitudeMiner) Name() string { return MinerChangeMagnitude }

// Family implements Miner.
func (m *ChangeMagnitudeMiner) Family() types.PatternFamily { return types.FamilyChangeMagnitude }

// Mine implements Miner.
func (m *ChangeMagnitudeMiner) Mine(ctx context.Context, in *MineInput) (*MinerResult, error) {
	patterns := ComputeMagnitudes(in.Session, in.Activity)
	if len(patterns) == 0 {
		return &MinerResult{}, nil
	}

	paths := make([]string, len(patterns))
	for i, p := range patterns {
		paths[i] = p.FilePath
	}
	histories, err := m.store.FileHistories(ctx, in.Session.Project, paths, in.Session.ID)
	if err != nil {
		return nil, fmt.Errorf("loading file history: %w", err)
	}

	withHistory := 0
	points := make([]types.FileHistoryPoint, 0, len(patterns))
	for _, p := range patterns {
		current := types.FileHistoryPoint{
			Project:         p.Project,
			FilePath:        p.FilePath,
			SessionID:       p.SessionID,
			PeriodEnd:       in.Session.Range.End,
			ChangeFrequency: p.ChangeFrequency,
		}
		series := append(histories[p.FilePath], current)
		if len(series) > 1 {
			withHistory++
		}
		p.Trend, p.TrendSlope = ClassifyTrend(series, m.config)
		points = append(points, current)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.UpsertChangeMagnitudePatterns(ctx, patterns); err != nil {
		return nil, err
	}
	if err := m.store.AppendFileHistory(ctx, points); err != nil {
		return nil, fmt.Errorf("recording file history: %w", err)
	}

	m.logger.Debug("change magnitude mined", "files", len(patterns), "with_history", withHistory)
	return &MinerResult{PatternsWritten: len(patterns)}, nil
}

// fileAcc accumulates one file's changes.
type fileAcc struct {
	path     string
	sizes    []float64
	times    []time.Time
	added    int
	removed  int
	authors  map[string]int
	meanSize float64
	churn    float64
	freq     float64
}

// ComputeMagnitudes builds one pattern per changed file, sorted by path.
// Trend fields are left stable; they need the cross-session history.
func ComputeMagnitudes(sess *types.DiscoverySession, snap *activity.Snapshot) []*types.ChangeMagnitudePattern {
	files := make(map[string]*fileAcc)
	for _, c := range snap.Commits {
		author := c.DeveloperHash()
		for _, fc := range snap.FilesOf(c.SHA) {
			f := files[fc.FilePath]
			if f == nil {
				f = &fileAcc{path: fc.FilePath, authors: make(map[string]int)}
				files[fc.FilePath] = f
			}
			f.sizes = append(f.sizes, float64(fc.Size()))
			f.times = append(f.times, c.AuthorDate)
			f.added += fc.LinesAdded
			f.removed += fc.LinesRemoved
			f.authors[author]++
		}
	}
	if len(files) == 0 {
		return nil
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	weeks := sess.Range.Weeks()
	means := make([]float64, 0, len(files))
	freqs := make([]float64, 0, len(files))
	churns := make([]float64, 0, len(files))
	for _, path := range paths {
		f := files[path]
		f.meanSize = stats.Describe(f.sizes).Mean
		f.freq = float64(len(f.sizes)) / weeks
		f.churn = float64(f.added + f.removed)
		means = append(means, f.meanSize)
		freqs = append(freqs, f.freq)
		churns = append(churns, f.churn)
	}
	population := stats.Describe(means)

	out := make([]*types.ChangeMagnitudePattern, 0, len(files))
	for _, path := range paths {
		f := files[path]
		size := stats.Describe(f.sizes)
		volatility := types.Clamp01(size.CV)

		p := &types.ChangeMagnitudePattern{
			Project:             sess.Project,
			SessionID:           sess.ID,
			FilePath:            path,
			ChangeCount:         len(f.sizes),
			LinesAdded:          f.added,
			LinesRemoved:        f.removed,
			AvgLinesChanged:     size.Mean,
			MedianLinesChanged:  size.Median,
			StdDevLinesChanged:  size.StdDev,
			ChangeFrequency:     f.freq,
			VolatilityScore:     volatility,
			StabilityScore:      1 - volatility,
			PredictabilityScore: types.Clamp01(1 / (1 + stats.CV(intervals(f.times)))),
			AnomalyScore:        stats.TwoSidedScore(stats.ZScore(f.meanSize, population.Mean, population.StdDev)),
			HotspotScore:        types.Clamp01(0.7*stats.PercentileRank(freqs, f.freq) + 0.3*stats.PercentileRank(churns, f.churn)),
			ContributorCount:    len(f.authors),
			Trend:               types.TrendStable,
		}

		rework := 0.0
		if f.churn > 0 {
			rework = float64(f.removed) / f.churn
		}
		p.TechnicalDebt = types.Clamp01(0.5*rework + 0.5*volatility)

		shares := make([]float64, 0, len(f.authors))
		for _, n := range f.authors {
			shares = append(shares, float64(n))
		}
		p.ContributorDiversity = types.Clamp01(1 - stats.Herfindahl(shares))

		p.RiskLevel = ClassifyFileRisk(p.AnomalyScore, p.HotspotScore, p.TechnicalDebt)
		out = append(out, p)
	}
	return out
}

// intervals returns the gaps in hours between consecutive change times.
func intervals(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	out := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out = append(out, sorted[i].Sub(sorted[i-1]).Hours())
	}
	return out
}

// ClassifyFileRisk applies the composite risk bands.
func ClassifyFileRisk(anomaly, hotspot, debt float64) types.RiskLevel {
	switch {
	case anomaly >= 0.9 || hotspot >= 0.95:
		return types.RiskCritical
	case anomaly >= 0.7 || hotspot >= 0.8 || debt >= 0.8:
		return types.RiskHigh
	case anomaly >= 0.5 || hotspot >= 0.6 || debt >= 0.6:
		return types.RiskMedium
	}
	return types.RiskLow
}

// ClassifyTrend derives a file's trend from its change-frequency series
// (any order; sorted by period end here). Returns the OLS slope in changes
// per week per week alongside the direction.
func ClassifyTrend(series []types.FileHistoryPoint, cfg MagnitudeConfig) (types.TrendDirection, float64) {
	minPoints := cfg.MinHistoryPoints
	if minPoints < 3 {
		minPoints = 3
	}
	if len(series) < minPoints {
		return types.TrendStable, 0
	}

	sorted := append([]types.FileHistoryPoint(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PeriodEnd.Before(sorted[j].PeriodEnd) })

	origin := sorted[0].PeriodEnd
	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = p.PeriodEnd.Sub(origin).Hours() / (24 * 7)
		ys[i] = p.ChangeFrequency
	}

	fit := stats.LinearTrend(xs, ys)
	switch {
	case fit.PValue < cfg.TrendSignificance && fit.Slope > 0:
		return types.TrendIncreasing, fit.Slope
	case fit.PValue < cfg.TrendSignificance && fit.Slope < 0:
		return types.TrendDecreasing, fit.Slope
	case len(ys) >= 4 && stats.Autocorrelation(ys, 2) > 0.5:
		return types.TrendCyclical, fit.Slope
	case stats.CV(ys) > 0.5:
		return types.TrendVolatile, fit.Slope
	}
	return types.TrendStable, fit.Slope
}
