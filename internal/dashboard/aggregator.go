// Package dashboard builds the per-project rollup served to dashboards.
//
// The rollup is a pure recomputation over one consistent snapshot of the
// project (latest completed session, insights, open alerts). It is always
// written as a full overwrite, so running it twice over the same data
// yields the same document.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/devpulse/internal/alerting"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/telemetry"
	"github.com/steveyegge/devpulse/internal/types"
)

// Config controls rollup contents and on-demand refresh throttling.
type Config struct {
	// BacklogSize is how many ranked backlog items the rollup keeps.
	BacklogSize int

	// HighDebtThreshold marks a file as high-debt.
	HighDebtThreshold float64

	// RefreshEvery is the minimum spacing of on-demand refreshes per project.
	RefreshEvery time.Duration
	// RefreshBurst is how many on-demand refreshes may run back to back.
	RefreshBurst int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BacklogSize:       10,
		HighDebtThreshold: 0.6,
		RefreshEvery:      30 * time.Second,
		RefreshBurst:      1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BacklogSize < 0 {
		return fmt.Errorf("backlog_size cannot be negative (got %d)", c.BacklogSize)
	}
	if c.HighDebtThreshold <= 0 || c.HighDebtThreshold > 1 {
		return fmt.Errorf("high_debt_threshold must be in (0,1] (got %v)", c.HighDebtThreshold)
	}
	if c.RefreshEvery <= 0 {
		return fmt.Errorf("refresh_every must be positive (got %v)", c.RefreshEvery)
	}
	if c.RefreshBurst < 1 {
		return fmt.Errorf("refresh_burst must be at least 1 (got %d)", c.RefreshBurst)
	}
	return nil
}

// refactoringTypes are the insight types that name a concrete refactoring.
var refactoringTypes = map[types.InsightType]bool{
	types.InsightFileCoupling:         true,
	types.InsightArchitecturalHotspot: true,
	types.InsightTechnicalDebt:        true,
	types.InsightQualityConcern:       true,
}

// Aggregator recomputes dashboard rollups.
type Aggregator struct {
	store  storage.Storage
	config *Config
	logger *slog.Logger
}

// NewAggregator creates an aggregator. A nil config uses DefaultConfig.
func NewAggregator(store storage.Storage, config *Config, logger *slog.Logger) (*Aggregator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dashboard config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, config: config, logger: logger.With("component", "dashboard")}, nil
}

// Refresh reads a snapshot of the project, rebuilds its rollup and stores
// it, replacing the previous one.
func (a *Aggregator) Refresh(ctx context.Context, project string) (*types.DashboardRollup, error) {
	start := time.Now()
	snap, err := a.store.ReadProjectSnapshot(ctx, project)
	if err != nil {
		return nil, err
	}
	r := Build(snap, a.config)
	if err := a.store.SaveRollup(ctx, r); err != nil {
		return nil, err
	}
	telemetry.ObserveSince(telemetry.DashboardRefreshDuration, start)
	a.logger.Debug("rollup refreshed", "project", project, "session_id", r.SessionID, "backlog", len(r.Backlog))
	return r, nil
}

// Build is the pure rollup of one snapshot.
func Build(snap *types.ProjectSnapshot, cfg *Config) *types.DashboardRollup {
	r := &types.DashboardRollup{
		Project:                snap.Project,
		GeneratedAt:            snap.ReadAt,
		PatternCounts:          map[types.PatternFamily]int{},
		FilesByRisk:            map[types.RiskLevel]int{},
		DevelopersBySiloGrade:  map[string]int{},
		InsightsByRisk:         map[types.RiskLevel]int{},
		InsightsByStatus:       map[types.ValidationStatus]int{},
		ActiveAlertsBySeverity: map[types.Severity]int{},
	}
	for _, level := range types.AllRiskLevels() {
		r.FilesByRisk[level] = 0
		r.InsightsByRisk[level] = 0
	}
	for _, sev := range types.AllSeverities() {
		r.ActiveAlertsBySeverity[sev] = 0
	}

	if sess := snap.Session; sess != nil {
		r.SessionID = sess.ID
		r.LastAnalysisAt = sess.CompletedAt
	}

	r.PatternCounts[types.FamilyCooccurrence] = len(snap.Cooccurrence)
	r.PatternCounts[types.FamilyTemporal] = len(snap.Temporal)
	r.PatternCounts[types.FamilyDeveloper] = len(snap.Developers)
	r.PatternCounts[types.FamilyChangeMagnitude] = len(snap.Files)

	for _, f := range snap.Files {
		r.FilesByRisk[f.RiskLevel]++
		r.TechnicalDebtTotal += f.TechnicalDebt
		if f.TechnicalDebt >= cfg.HighDebtThreshold {
			r.HighDebtFiles++
		}
	}
	if len(snap.Files) > 0 {
		r.TechnicalDebtAverage = r.TechnicalDebtTotal / float64(len(snap.Files))
	}

	for _, d := range snap.Developers {
		r.DevelopersBySiloGrade[types.SiloGrade(d.KnowledgeSiloRisk)]++
	}

	for _, in := range snap.Insights {
		r.InsightsByStatus[in.Status]++
		if in.SupersededBy != "" || in.Status == types.ValidationOutdated || in.Status == types.ValidationRejected {
			continue
		}
		r.InsightsByRisk[in.RiskLevel]++
		if refactoringTypes[in.Type] && in.Status != types.ValidationImplemented {
			r.RefactoringOpportunities++
		}
	}

	for _, al := range snap.OpenAlerts {
		r.ActiveAlertsBySeverity[al.Severity]++
	}

	r.Backlog = alerting.RankBacklog(snap.OpenAlerts, snap.Insights, cfg.BacklogSize)
	if r.Backlog == nil {
		r.Backlog = []types.BacklogItem{}
	}
	return r
}
