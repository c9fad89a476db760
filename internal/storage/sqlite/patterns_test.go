package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func temporalPattern(project, sessionID string) *types.TemporalPattern {
	return &types.TemporalPattern{
		Project:          project,
		SessionID:        sessionID,
		PatternType:      types.TemporalDaily,
		Observed:         []int{10, 12, 11, 9, 8, 0, 0},
		Expected:         []float64{50.0 / 7, 50.0 / 7, 50.0 / 7, 50.0 / 7, 50.0 / 7, 50.0 / 7, 50.0 / 7},
		TotalCommits:     50,
		ChiSquare:        25.2,
		DegreesOfFreedom: 6,
		PValue:           0.0003,
		StrengthScore:    0.29,
		Strength:         types.StrengthModerate,
		PeakBuckets:      []int{0, 1, 2},
		Stability:        types.StabilityEmerging,
	}
}

func developerPattern(project, sessionID, email string) *types.DeveloperPattern {
	return &types.DeveloperPattern{
		Project:             project,
		SessionID:           sessionID,
		DeveloperHash:       types.HashIdentity(email),
		DisplayName:         "dev",
		CommitCount:         12,
		LinesAdded:          400,
		LinesRemoved:        100,
		UniqueFiles:         10,
		ExclusiveFiles:      6,
		SpecialtyFiles:      []string{"pkg/a.go"},
		SpecializationScore: 0.7,
		KnowledgeBreadth:    0.3,
		ChangeVelocity:      3,
		Consistency:         0.5,
		CollaborationScore:  0.2,
		TemporalOverlap:     0.4,
		KnowledgeSiloRisk:   0.6,
		PreferredHours:      []int{9, 10, 11},
		WorkSchedule:        types.ScheduleBusinessHours,
		FirstCommitAt:       day(0),
		LastCommitAt:        day(20),
	}
}

func magnitudePattern(project, sessionID, path string, risk types.RiskLevel, hotspot float64) *types.ChangeMagnitudePattern {
	return &types.ChangeMagnitudePattern{
		Project:              project,
		SessionID:            sessionID,
		FilePath:             path,
		ChangeCount:          8,
		LinesAdded:           300,
		LinesRemoved:         120,
		AvgLinesChanged:      52.5,
		MedianLinesChanged:   40,
		StdDevLinesChanged:   30,
		ChangeFrequency:      2,
		VolatilityScore:      0.57,
		StabilityScore:       0.43,
		PredictabilityScore:  0.6,
		AnomalyScore:         0.1,
		HotspotScore:         hotspot,
		TechnicalDebt:        0.5,
		ContributorCount:     2,
		ContributorDiversity: 0.5,
		Trend:                types.TrendStable,
		RiskLevel:            risk,
	}
}

func TestCooccurrenceUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	p := pair(t, "proj", sess.ID, "a.ts", "b.ts")
	require.NoError(t, s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{p}))
	firstID := p.ID

	again := pair(t, "proj", sess.ID, "a.ts", "b.ts")
	again.CooccurrenceCount = 5
	again.Lift = 2
	require.NoError(t, s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{again}))

	got, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, firstID, got[0].ID)
	assert.Equal(t, 5, got[0].CooccurrenceCount)
	assert.Equal(t, 2.0, got[0].Lift)
	assert.Equal(t, []string{"c1", "c2", "c3"}, got[0].ContributingCommit)
	assert.True(t, got[0].Bidirectional)
	assert.True(t, got[0].IsActive)
}

func TestCooccurrenceRejectsInvalidPairs(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	p := pair(t, "proj", sess.ID, "a.ts", "b.ts")
	p.Path1, p.Path2 = p.Path2, p.Path1
	err := s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{p})
	assert.True(t, errors.Is(err, types.ErrBoundViolation), "got %v", err)

	p = pair(t, "proj", sess.ID, "a.ts", "b.ts")
	p.Support = 1.2
	err = s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{p})
	assert.True(t, errors.Is(err, types.ErrBoundViolation), "got %v", err)

	got, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{SessionID: sess.ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCooccurrenceFilters(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	weak := pair(t, "proj", sess.ID, "x.go", "y.go")
	weak.Strength = types.StrengthWeak
	weak.Lift = 1.1
	require.NoError(t, s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{
		pair(t, "proj", sess.ID, "a.ts", "b.ts"), weak,
	}))

	strong, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{SessionID: sess.ID, MinStrength: types.StrengthModerate})
	require.NoError(t, err)
	require.Len(t, strong, 1)
	assert.Equal(t, "a.ts", strong[0].Path1)

	byFile, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{SessionID: sess.ID, FilePath: "y.go"})
	require.NoError(t, err)
	require.Len(t, byFile, 1)
	assert.Equal(t, "x.go", byFile[0].Path1)

	// No completed session yet: the project-scoped listing is empty
	none, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Empty(t, none)

	sess.TotalDuration = time.Second
	_, err = s.CompleteSession(ctx, sess)
	require.NoError(t, err)
	latest, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	assert.Equal(t, "a.ts", latest[0].Path1, "ordered by lift")
}

func TestTemporalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	p := temporalPattern("proj", sess.ID)
	require.NoError(t, s.UpsertTemporalPatterns(ctx, []*types.TemporalPattern{p}))

	got, err := s.ListTemporalPatterns(ctx, types.PatternFilter{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.Observed, got[0].Observed)
	assert.Equal(t, []int{0, 1, 2}, got[0].PeakBuckets)
	assert.Equal(t, 6, got[0].DegreesOfFreedom)
	assert.InDelta(t, 0.0003, got[0].PValue, 1e-12)
	assert.Equal(t, types.StabilityEmerging, got[0].Stability)

	bad := temporalPattern("proj", sess.ID)
	bad.PValue = 1.5
	assert.True(t, errors.Is(s.UpsertTemporalPatterns(ctx, []*types.TemporalPattern{bad}), types.ErrBoundViolation))
}

func TestDeveloperRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	low := developerPattern("proj", sess.ID, "low@example.com")
	low.KnowledgeSiloRisk = 0.1
	high := developerPattern("proj", sess.ID, "high@example.com")
	require.NoError(t, s.UpsertDeveloperPatterns(ctx, []*types.DeveloperPattern{low, high}))

	got, err := s.ListDeveloperPatterns(ctx, types.PatternFilter{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high.DeveloperHash, got[0].DeveloperHash, "highest silo risk first")
	assert.Equal(t, []int{9, 10, 11}, got[0].PreferredHours)
	assert.Equal(t, []string{"pkg/a.go"}, got[0].SpecialtyFiles)
	assert.InDelta(t, 20.0, got[0].TenureDays(), 1e-9)
	assert.Equal(t, 300, got[0].NetLines())
}

func TestChangeMagnitudeFilters(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	require.NoError(t, s.UpsertChangeMagnitudePatterns(ctx, []*types.ChangeMagnitudePattern{
		magnitudePattern("proj", sess.ID, "core/engine.go", types.RiskHigh, 0.9),
		magnitudePattern("proj", sess.ID, "docs/readme.md", types.RiskLow, 0.1),
	}))

	high, err := s.ListChangeMagnitudePatterns(ctx, types.PatternFilter{SessionID: sess.ID, RiskLevel: types.RiskHigh})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "core/engine.go", high[0].FilePath)

	counts, err := s.CountSessionPatterns(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.FamilyChangeMagnitude])
	assert.Equal(t, 0, counts[types.FamilyTemporal])

	require.NoError(t, s.ClearSessionPatterns(ctx, sess.ID))
	counts, err = s.CountSessionPatterns(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[types.FamilyChangeMagnitude])
}

func TestFileHistories(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	s1 := completedSession(t, s, "proj", day(0), day(30))
	s2 := completedSession(t, s, "proj", day(31), day(60))
	current := startSession(t, s, "proj", day(61), day(90))

	require.NoError(t, s.AppendFileHistory(ctx, []types.FileHistoryPoint{
		{Project: "proj", FilePath: "a.go", SessionID: s2.ID, PeriodEnd: day(60), ChangeFrequency: 3},
		{Project: "proj", FilePath: "a.go", SessionID: s1.ID, PeriodEnd: day(30), ChangeFrequency: 1},
		{Project: "proj", FilePath: "b.go", SessionID: s1.ID, PeriodEnd: day(30), ChangeFrequency: 2},
		{Project: "proj", FilePath: "a.go", SessionID: current.ID, PeriodEnd: day(90), ChangeFrequency: 9},
	}))

	hist, err := s.FileHistories(ctx, "proj", []string{"a.go", "b.go", "c.go"}, current.ID)
	require.NoError(t, err)
	require.Len(t, hist["a.go"], 2)
	assert.Equal(t, 1.0, hist["a.go"][0].ChangeFrequency, "oldest first")
	assert.Equal(t, 3.0, hist["a.go"][1].ChangeFrequency)
	assert.Len(t, hist["b.go"], 1)
	assert.Empty(t, hist["c.go"])

	err = s.AppendFileHistory(ctx, []types.FileHistoryPoint{
		{Project: "proj", FilePath: "a.go", SessionID: s1.ID, PeriodEnd: day(30), ChangeFrequency: -1},
	})
	assert.True(t, errors.Is(err, types.ErrBoundViolation))
}
