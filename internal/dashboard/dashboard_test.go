package dashboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/devpulse/internal/alerting"
	"github.com/steveyegge/devpulse/internal/storage/sqlite"
	"github.com/steveyegge/devpulse/internal/types"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "devpulse.db"))
	require.NoError(t, err)
	store.SetClock(func() time.Time { return t0 })
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBuild(t *testing.T) {
	completed := t0.Add(-2 * time.Hour)
	snap := &types.ProjectSnapshot{
		Project:      "proj",
		Session:      &types.DiscoverySession{ID: "s1", CompletedAt: &completed},
		Cooccurrence: []*types.CooccurrencePattern{{}, {}},
		Files: []*types.ChangeMagnitudePattern{
			{FilePath: "a.go", RiskLevel: types.RiskCritical, TechnicalDebt: 0.8},
			{FilePath: "b.go", RiskLevel: types.RiskLow, TechnicalDebt: 0.2},
		},
		Developers: []*types.DeveloperPattern{{KnowledgeSiloRisk: 0.1}, {KnowledgeSiloRisk: 0.95}},
		Insights: []*types.Insight{
			{ID: "i1", Type: types.InsightTechnicalDebt, RiskLevel: types.RiskHigh, Status: types.ValidationPending, PriorityScore: 0.6},
			{ID: "i2", Type: types.InsightFileCoupling, RiskLevel: types.RiskMedium, Status: types.ValidationImplemented},
			{ID: "i3", Type: types.InsightAnomaly, RiskLevel: types.RiskHigh, Status: types.ValidationOutdated},
		},
		OpenAlerts: []*types.Alert{
			{ID: "a1", Severity: types.SeverityHigh, BusinessImpact: types.RiskMedium, Confidence: 0.5, Status: types.AlertOpen},
		},
		ReadAt: t0,
	}

	r := Build(snap, DefaultConfig())
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, &completed, r.LastAnalysisAt)
	assert.Equal(t, 2, r.PatternCounts[types.FamilyCooccurrence])
	assert.Equal(t, 2, r.PatternCounts[types.FamilyChangeMagnitude])
	assert.Equal(t, 0, r.PatternCounts[types.FamilyTemporal])
	assert.Equal(t, 1, r.FilesByRisk[types.RiskCritical])
	assert.Equal(t, 0, r.FilesByRisk[types.RiskHigh])
	assert.Equal(t, map[string]int{"A": 1, "F": 1}, r.DevelopersBySiloGrade)
	assert.Equal(t, 1, r.InsightsByRisk[types.RiskHigh])
	assert.Equal(t, 1, r.InsightsByStatus[types.ValidationOutdated])
	assert.Equal(t, 1, r.RefactoringOpportunities)
	assert.Equal(t, 1, r.ActiveAlertsBySeverity[types.SeverityHigh])
	assert.Equal(t, 0, r.ActiveAlertsBySeverity[types.SeverityCritical])
	assert.InDelta(t, 1.0, r.TechnicalDebtTotal, 1e-9)
	assert.InDelta(t, 0.5, r.TechnicalDebtAverage, 1e-9)
	assert.Equal(t, 1, r.HighDebtFiles)
	require.Len(t, r.Backlog, 2)
	assert.Equal(t, "a1", r.Backlog[0].ID)

	// Same snapshot, same rollup.
	assert.Equal(t, r, Build(snap, DefaultConfig()))
}

func TestBuildEmptySnapshot(t *testing.T) {
	r := Build(&types.ProjectSnapshot{Project: "proj", ReadAt: t0}, DefaultConfig())
	assert.Empty(t, r.SessionID)
	assert.Nil(t, r.LastAnalysisAt)
	assert.NotNil(t, r.Backlog)
	assert.Equal(t, 0.0, r.TechnicalDebtAverage)
}

func TestRefresherServesAndThrottles(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	sess := &types.DiscoverySession{
		Project:          "proj",
		Range:            types.CommitRange{Start: t0.AddDate(0, 0, -7), End: t0},
		AlgorithmVersion: "v1.0.0",
	}
	require.NoError(t, store.CreateSession(ctx, sess))
	sess.TotalDuration = time.Second
	sess.PhaseTimings = map[string]time.Duration{types.PhaseMining: time.Second}
	_, err := store.CompleteSession(ctx, sess)
	require.NoError(t, err)

	agg, err := NewAggregator(store, nil, nil)
	require.NoError(t, err)
	r := NewRefresher(agg)
	clock := t0.Add(5 * time.Hour)
	r.SetClock(func() time.Time { return clock })

	// Miss triggers a refresh.
	got, err := r.Get(ctx, "proj", false)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.SessionID)
	require.NotNil(t, got.HoursSinceLastAnalysis)
	assert.InDelta(t, 5.0, *got.HoursSinceLastAnalysis, 1e-6)
	assert.Equal(t, 0, got.ActiveAlertsBySeverity[types.SeverityHigh])

	engine, err := alerting.NewEngine(store, nil, nil)
	require.NoError(t, err)
	baseline := 100.0
	_, err = engine.RecordMetric(ctx, &types.Metric{
		Project: "proj", Type: "churn", Scope: types.ScopeProject, Value: 160, Baseline: &baseline,
	})
	require.NoError(t, err)

	// A forced refresh right away is throttled and serves the stored copy.
	got, err = r.Get(ctx, "proj", true)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ActiveAlertsBySeverity[types.SeverityHigh])

	// Staleness moves with the clock, not the stored document.
	clock = clock.Add(time.Minute)
	got, err = r.Get(ctx, "proj", true)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActiveAlertsBySeverity[types.SeverityHigh])
	assert.InDelta(t, 5.0+1.0/60, *got.HoursSinceLastAnalysis, 1e-6)
	require.Len(t, got.Backlog, 1)
	assert.Equal(t, types.BacklogAlert, got.Backlog[0].Kind)

	stored, err := store.GetRollup(ctx, "proj")
	require.NoError(t, err)
	assert.Nil(t, stored.HoursSinceLastAnalysis)
}

func TestRefresherMissWhileThrottled(t *testing.T) {
	store := setupTestDB(t)
	agg, err := NewAggregator(store, nil, nil)
	require.NoError(t, err)
	r := NewRefresher(agg)
	r.SetClock(func() time.Time { return t0 })

	require.True(t, r.limiter("other").AllowN(t0, 1))
	_, err = r.Get(context.Background(), "other", false)
	assert.ErrorIs(t, err, ErrRefreshThrottled)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.RefreshEvery = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HighDebtThreshold = 2
	assert.Error(t, cfg.Validate())
}
