package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordMetric(t *testing.T, s *SQLiteStorage, m *types.Metric) {
	t.Helper()
	err := s.WithMetricTx(context.Background(), func(tx *MetricTx) error {
		return tx.InsertMetric(context.Background(), m)
	})
	require.NoError(t, err)
}

func TestMetricTxKeepsOneActivePerScope(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	first := &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeFile, ScopeID: "a.go", Value: 100}
	recordMetric(t, s, first)
	second := &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeFile, ScopeID: "a.go", Value: 160}
	recordMetric(t, s, second)
	recordMetric(t, s, &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeFile, ScopeID: "b.go", Value: 40})

	active, err := s.ListMetrics(ctx, types.MetricFilter{Project: "proj", ScopeID: "a.go", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	old, err := s.GetMetric(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	err = s.WithMetricTx(ctx, func(tx *MetricTx) error {
		probe := &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeFile, ScopeID: "a.go"}
		prev, err := tx.PreviousActive(ctx, probe)
		require.NoError(t, err)
		require.NotNil(t, prev)
		assert.Equal(t, 160.0, prev.Value)

		pop, err := tx.PopulationValues(ctx, probe)
		require.NoError(t, err)
		assert.Equal(t, []float64{40}, pop, "own scope key is excluded")

		none, err := tx.PreviousActive(ctx, &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeFile, ScopeID: "c.go"})
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestMetricTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	boom := errors.New("classification failed")
	err := s.WithMetricTx(ctx, func(tx *MetricTx) error {
		if err := tx.InsertMetric(ctx, &types.Metric{Project: "proj", Type: "churn", Scope: types.ScopeProject, Value: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := s.ListMetrics(ctx, types.MetricFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMetricBaselineAndThresholdRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	baseline, threshold := 80.0, 150.0
	m := &types.Metric{
		Project:        "proj", Type: "churn", Scope: types.ScopeDirectory, ScopeID: "pkg",
		PeriodStart:    day(0), PeriodEnd: day(7), Value: 120, Unit: "lines",
		Baseline:       &baseline, Threshold: &threshold, ThresholdDirection: types.ThresholdAbove,
		PercentileRank: 0.5, PercentChange: 50, ChangeSignificance: types.SignificanceMajor,
	}
	recordMetric(t, s, m)

	got, err := s.GetMetric(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Baseline)
	require.NotNil(t, got.Threshold)
	assert.Equal(t, 80.0, *got.Baseline)
	assert.Equal(t, 150.0, *got.Threshold)
	assert.True(t, got.PeriodEnd.Equal(day(7)))
	assert.Equal(t, types.SignificanceMajor, got.ChangeSignificance)

	_, err = s.GetMetric(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func testAlert(project, scopeID string) *types.Alert {
	return &types.Alert{
		Project:        project,
		Type:           types.AlertTrendSpike,
		Severity:       types.SeverityHigh,
		Title:          "churn spike on " + scopeID,
		MetricType:     "churn",
		Scope:          types.ScopeFile,
		ScopeID:        scopeID,
		TriggerValue:   160,
		PercentChange:  60,
		BusinessImpact: types.RiskMedium,
		Confidence:     0.8,
	}
}

func TestFindOpenSimilarAlert(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	a := testAlert("proj", "a.go")
	err := s.WithMetricTx(ctx, func(tx *MetricTx) error {
		return tx.CreateAlert(ctx, a)
	})
	require.NoError(t, err)
	assert.Equal(t, types.AlertOpen, a.Status)
	assert.Equal(t, types.UrgencyHigh, a.Urgency)

	err = s.WithMetricTx(ctx, func(tx *MetricTx) error {
		found, err := tx.FindOpenSimilarAlert(ctx, testAlert("proj", "a.go"))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, a.ID, found.ID)

		// Different scope, different signature
		other, err := tx.FindOpenSimilarAlert(ctx, testAlert("proj", "b.go"))
		require.NoError(t, err)
		assert.Nil(t, other)

		found.SimilarAlertCount++
		found.LastSeenAt = now
		return tx.UpdateAlert(ctx, found)
	})
	require.NoError(t, err)

	got, err := s.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SimilarAlertCount)

	// Age does not matter while the alert is still open.
	s.SetClock(func() time.Time { return now.Add(30 * 24 * time.Hour) })
	err = s.WithMetricTx(ctx, func(tx *MetricTx) error {
		found, err := tx.FindOpenSimilarAlert(ctx, testAlert("proj", "a.go"))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, a.ID, found.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestTransitionAlert(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	a := testAlert("proj", "a.go")
	require.NoError(t, s.WithMetricTx(ctx, func(tx *MetricTx) error { return tx.CreateAlert(ctx, a) }))

	_, err := s.TransitionAlert(ctx, a.ID, types.AlertResolved, "fixed", "")
	assert.True(t, errors.Is(err, types.ErrInvalidTransition), "open alerts must be acknowledged first")

	acked, err := s.TransitionAlert(ctx, a.ID, types.AlertAcknowledged, "", "")
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)

	resolved, err := s.TransitionAlert(ctx, a.ID, types.AlertFalsePositive, "", "noise from bulk rename")
	require.NoError(t, err)
	assert.Equal(t, types.AlertFalsePositive, resolved.Status)
	assert.Equal(t, string(types.AlertFalsePositive), resolved.ResolutionMethod)
	require.NotNil(t, resolved.ResolvedAt)

	open, err := s.ListAlerts(ctx, types.AlertFilter{Project: "proj", OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)

	evs, err := s.ListEvents(ctx, events.EventFilter{EntityID: a.ID, Type: events.EventTypeAlertTransition})
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestListAlertsOrdersBySeverity(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	low := testAlert("proj", "low.go")
	low.Severity = types.SeverityLow
	crit := testAlert("proj", "crit.go")
	crit.Severity = types.SeverityCritical
	require.NoError(t, s.WithMetricTx(ctx, func(tx *MetricTx) error {
		if err := tx.CreateAlert(ctx, low); err != nil {
			return err
		}
		return tx.CreateAlert(ctx, crit)
	}))

	list, err := s.ListAlerts(ctx, types.AlertFilter{Project: "proj"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, crit.ID, list[0].ID)
	assert.Equal(t, types.UrgencyImmediate, list[0].Urgency)
}
