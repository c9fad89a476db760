package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/storage/sqlite"
	"github.com/steveyegge/devpulse/internal/types"
)

var monday = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "devpulse.db"))
	require.NoError(t, err)
	e, err := New(store, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func fixtureSource(t *testing.T) *activity.MemorySource {
	t.Helper()
	b := activity.NewBuilder("proj")
	for i := 0; i < 21; i++ {
		at := monday.AddDate(0, 0, i)
		email := "alice@example.com"
		if i%3 == 0 {
			email = "bob@example.com"
		}
		b.Commit(fmt.Sprintf("c%02d", i), email, at,
			activity.FileSpec{Path: "api/handler.go", Added: 10 + i, Removed: i % 4},
			activity.FileSpec{Path: "api/handler_test.go", Added: 5})
		if i%2 == 0 {
			b.Commit(fmt.Sprintf("d%02d", i), email, at.Add(2*time.Hour),
				activity.FileSpec{Path: "docs/README.md", Added: 2})
		}
	}
	src, err := b.Source()
	require.NoError(t, err)
	return src
}

func fullRange() types.CommitRange {
	return types.CommitRange{Start: monday, End: monday.AddDate(0, 0, 21)}
}

func TestImportThenDiscover(t *testing.T) {
	ctx := context.Background()
	e := setupTestEngine(t)

	stats, err := e.Import(ctx, fixtureSource(t), "proj", fullRange())
	require.NoError(t, err)
	assert.Equal(t, 32, stats.Commits)
	assert.Equal(t, 53, stats.FileChanges)

	res, err := e.RunDiscovery(ctx, "proj", fullRange().Start, fullRange().End, false)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, types.SessionCompleted, res.Session.Status)
	assert.Equal(t, 32, res.Session.CommitsAnalyzed)

	again, err := e.RunDiscovery(ctx, "proj", fullRange().Start, fullRange().End, false)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, res.Session.ID, again.Session.ID)

	pairs, err := e.GetPatterns(ctx, types.FamilyCooccurrence, types.PatternFilter{Project: "proj"})
	require.NoError(t, err)
	require.Len(t, pairs.Cooccurrence, 1)
	assert.Equal(t, 1, pairs.Len())
	assert.Equal(t, "api/handler.go", pairs.Cooccurrence[0].Path1)
	assert.Equal(t, "api/handler_test.go", pairs.Cooccurrence[0].Path2)

	files, err := e.GetPatterns(ctx, types.FamilyChangeMagnitude, types.PatternFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Len(t, files.ChangeMagnitude, 3)

	sessions, err := e.Sessions(ctx, types.SessionFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	completed, err := e.Events(ctx, events.EventFilter{EntityID: res.Session.ID, Type: events.EventTypeSessionCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestGetPatternsRejectsBadInput(t *testing.T) {
	e := setupTestEngine(t)
	_, err := e.GetPatterns(context.Background(), "unknown", types.PatternFilter{Project: "proj"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = e.GetPatterns(context.Background(), types.FamilyTemporal, types.PatternFilter{})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestRunDiscoveryRejectsInvertedRange(t *testing.T) {
	e := setupTestEngine(t)
	_, err := e.RunDiscovery(context.Background(), "proj", monday, monday.AddDate(0, 0, -1), false)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestMetricAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	e := setupTestEngine(t)

	baseline := 100.0
	c, err := e.RecordMetric(ctx, &types.Metric{
		Project: "proj", Type: "build_time", Scope: types.ScopeProject, Value: 160, Baseline: &baseline,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SignificanceMajor, c.ChangeSignificance)
	require.True(t, c.AlertTriggered)
	require.NotNil(t, c.Alert)

	open, err := e.GetAlerts(ctx, types.AlertFilter{Project: "proj", Status: types.AlertOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)

	_, err = e.AcknowledgeAlert(ctx, c.Alert.ID, "looking")
	require.NoError(t, err)
	resolved, err := e.ResolveAlert(ctx, c.Alert.ID, "fixed", "cache warmed")
	require.NoError(t, err)
	assert.Equal(t, types.AlertResolved, resolved.Status)

	open, err = e.GetAlerts(ctx, types.AlertFilter{Project: "proj", OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDashboardAndSweep(t *testing.T) {
	ctx := context.Background()
	e := setupTestEngine(t)

	_, err := e.Import(ctx, fixtureSource(t), "proj", fullRange())
	require.NoError(t, err)
	res, err := e.RunDiscovery(ctx, "proj", fullRange().Start, fullRange().End, false)
	require.NoError(t, err)

	rollup, err := e.GetDashboard(ctx, "proj", false)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, rollup.SessionID)
	assert.Equal(t, 1, rollup.PatternCounts[types.FamilyCooccurrence])
	require.NotNil(t, rollup.HoursSinceLastAnalysis)
	assert.GreaterOrEqual(t, *rollup.HoursSinceLastAnalysis, 0.0)

	require.NoError(t, e.Sweep(ctx))

	stored, err := e.Store().GetRollup(ctx, "proj")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Session.ID, stored.SessionID)
}
