package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/types"
)

var monday = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func testSession(rng types.CommitRange) *types.DiscoverySession {
	return &types.DiscoverySession{ID: "sess-1", Project: "proj", Range: rng, AlgorithmVersion: DefaultAlgorithmVersion}
}

func snapshotOf(t *testing.T, b *activity.Builder, rng types.CommitRange) *activity.Snapshot {
	t.Helper()
	batch := b.Batch()
	require.NoError(t, batch.Validate())
	return activity.NewSnapshot("proj", rng, batch.Commits, batch.FileChanges, batch.Sessions)
}

func weekRange() types.CommitRange {
	return types.CommitRange{Start: monday, End: monday.AddDate(0, 0, 7)}
}

func TestComputeCooccurrence(t *testing.T) {
	b := activity.NewBuilder("proj")
	for i := 0; i < 5; i++ {
		files := []activity.FileSpec{{Path: "a.ts", Added: 3}}
		if i < 4 {
			files = append(files, activity.FileSpec{Path: "b.ts", Added: 1})
		}
		b.Commit(fmt.Sprintf("c%d", i), "dev@example.com", monday.Add(time.Duration(i)*time.Hour), files...)
	}
	rng := weekRange()
	snap := snapshotOf(t, b, rng)

	patterns := ComputeCooccurrence(testSession(rng), snap.Commits, snap.FilesOf, DefaultConfig().Cooccurrence)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, "a.ts", p.Path1)
	assert.Equal(t, "b.ts", p.Path2)
	assert.Equal(t, 4, p.CooccurrenceCount)
	assert.InDelta(t, 0.8, p.Support, 1e-9)
	assert.InDelta(t, 0.8, p.Confidence1To2, 1e-9)
	assert.InDelta(t, 1.0, p.Confidence2To1, 1e-9)
	assert.InDelta(t, 1.0, p.Lift, 1e-9)
	assert.Equal(t, types.StrengthWeak, p.Strength)
	assert.False(t, p.Bidirectional)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3"}, p.ContributingCommit)
	assert.Equal(t, types.PairHash("a.ts", "b.ts"), p.PairHash)
}

func TestComputeCooccurrenceIsDeterministic(t *testing.T) {
	b := activity.NewBuilder("proj")
	b.Commit("c1", "a@example.com", monday, activity.FileSpec{Path: "z.go", Added: 1}, activity.FileSpec{Path: "m.go", Added: 1}, activity.FileSpec{Path: "a.go", Added: 1})
	b.Commit("c2", "b@example.com", monday.Add(time.Hour), activity.FileSpec{Path: "m.go", Added: 1}, activity.FileSpec{Path: "a.go", Added: 1})
	rng := weekRange()
	snap := snapshotOf(t, b, rng)
	cfg := DefaultConfig().Cooccurrence

	first := ComputeCooccurrence(testSession(rng), snap.Commits, snap.FilesOf, cfg)
	second := ComputeCooccurrence(testSession(rng), snap.Commits, snap.FilesOf, cfg)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	for _, p := range first {
		assert.Less(t, p.Path1, p.Path2)
	}
}

func TestComputeCooccurrenceSkipsBulkCommits(t *testing.T) {
	b := activity.NewBuilder("proj")
	b.Commit("bulk", "dev@example.com", monday,
		activity.FileSpec{Path: "a.go", Added: 1}, activity.FileSpec{Path: "b.go", Added: 1}, activity.FileSpec{Path: "c.go", Added: 1})
	b.Commit("small", "dev@example.com", monday.Add(time.Hour),
		activity.FileSpec{Path: "a.go", Added: 1}, activity.FileSpec{Path: "b.go", Added: 1})
	rng := weekRange()
	snap := snapshotOf(t, b, rng)

	cfg := CooccurrenceConfig{MinCooccurrence: 1, MaxFilesPerCommit: 2}
	patterns := ComputeCooccurrence(testSession(rng), snap.Commits, snap.FilesOf, cfg)
	require.Len(t, patterns, 1)

	// The bulk commit still counts toward the totals.
	p := patterns[0]
	assert.Equal(t, 1, p.CooccurrenceCount)
	assert.InDelta(t, 0.5, p.Support, 1e-9)
	assert.InDelta(t, 0.5, p.Confidence1To2, 1e-9)
	assert.InDelta(t, 1.0, p.Lift, 1e-9)
}

func TestClassifyPairStrength(t *testing.T) {
	tests := []struct {
		lift, conf float64
		want       types.PatternStrength
	}{
		{12, 0.9, types.StrengthVeryStrong},
		{12, 0.7, types.StrengthStrong},
		{5, 0.6, types.StrengthStrong},
		{3, 0.5, types.StrengthModerate},
		{2, 0.39, types.StrengthWeak},
		{1, 1, types.StrengthWeak},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyPairStrength(tt.lift, tt.conf), "lift=%v conf=%v", tt.lift, tt.conf)
	}
}

func TestBucket(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, Bucket(types.TemporalDaily, monday))
	assert.Equal(t, 6, Bucket(types.TemporalDaily, sunday))
	assert.Equal(t, 23, Bucket(types.TemporalHourly, sunday))
	assert.Equal(t, 4, Bucket(types.TemporalWeekly, time.Date(2024, 5, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, Bucket(types.TemporalWeekly, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 11, Bucket(types.TemporalMonthly, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))

	seasons := map[time.Month]int{
		time.December: 0, time.January: 0, time.February: 0,
		time.March: 1, time.May: 1,
		time.June: 2, time.August: 2,
		time.September: 3, time.November: 3,
	}
	for month, want := range seasons {
		at := time.Date(2024, month, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, want, Bucket(types.TemporalSeasonal, at), month.String())
	}

	// Buckets are computed in UTC.
	east := time.FixedZone("UTC+9", 9*3600)
	assert.Equal(t, 1, Bucket(types.TemporalHourly, time.Date(2024, 6, 3, 10, 0, 0, 0, east)))
}

func TestComputeTemporalConcentratedHours(t *testing.T) {
	var commits []*types.Commit
	for i := 0; i < 10; i++ {
		commits = append(commits, &types.Commit{SHA: fmt.Sprintf("c%d", i), AuthorDate: monday.AddDate(0, 0, i)})
	}
	p := ComputeTemporal(testSession(weekRange()), types.TemporalHourly, commits, DefaultConfig().Temporal)

	assert.Equal(t, 10, p.TotalCommits)
	assert.Equal(t, 23, p.DegreesOfFreedom)
	assert.Equal(t, 10, p.Observed[10])
	assert.InDelta(t, 1.0, p.StrengthScore, 1e-9)
	assert.Equal(t, types.StrengthVeryStrong, p.Strength)
	assert.Less(t, p.PValue, 0.05)
	assert.Equal(t, []int{10}, p.PeakBuckets)
	require.NoError(t, p.Validate())
}

func TestComputeTemporalUniformIsWeak(t *testing.T) {
	var commits []*types.Commit
	for d := 0; d < 7; d++ {
		commits = append(commits, &types.Commit{SHA: fmt.Sprintf("c%d", d), AuthorDate: monday.AddDate(0, 0, d)})
	}
	p := ComputeTemporal(testSession(weekRange()), types.TemporalDaily, commits, DefaultConfig().Temporal)

	assert.InDelta(t, 0, p.ChiSquare, 1e-9)
	assert.InDelta(t, 1, p.PValue, 1e-9)
	assert.Equal(t, types.StrengthWeak, p.Strength)
	assert.Empty(t, p.PeakBuckets)
}

func TestClassifyTemporalStrength(t *testing.T) {
	assert.Equal(t, types.StrengthWeak, ClassifyTemporalStrength(0.9, 0.2, 0.05))
	assert.Equal(t, types.StrengthVeryStrong, ClassifyTemporalStrength(0.5, 0.01, 0.05))
	assert.Equal(t, types.StrengthStrong, ClassifyTemporalStrength(0.35, 0.01, 0.05))
	assert.Equal(t, types.StrengthModerate, ClassifyTemporalStrength(0.15, 0.01, 0.05))
	assert.Equal(t, types.StrengthWeak, ClassifyTemporalStrength(0.1, 0.01, 0.05))
}

func TestClassifyStability(t *testing.T) {
	current := &types.TemporalPattern{Observed: []int{5, 5, 0, 0}, TotalCommits: 10, StrengthScore: 0.6}

	assert.Equal(t, types.StabilityEmerging, ClassifyStability(current, nil))

	same := &types.TemporalPattern{Observed: []int{10, 10, 0, 0}, TotalCommits: 20, StrengthScore: 0.6}
	assert.Equal(t, types.StabilityStable, ClassifyStability(current, same))

	weaker := &types.TemporalPattern{Observed: []int{4, 4, 1, 1}, TotalCommits: 10, StrengthScore: 0.4}
	assert.Equal(t, types.StabilityEmerging, ClassifyStability(current, weaker))

	stronger := &types.TemporalPattern{Observed: []int{4, 4, 1, 1}, TotalCommits: 10, StrengthScore: 0.8}
	assert.Equal(t, types.StabilityDeclining, ClassifyStability(current, stronger))

	shifted := &types.TemporalPattern{Observed: []int{0, 0, 5, 5}, TotalCommits: 10, StrengthScore: 0.6}
	assert.Equal(t, types.StabilityVolatile, ClassifyStability(current, shifted))
}

func developerFixture(t *testing.T, withSessions bool) []*types.DeveloperPattern {
	t.Helper()
	b := activity.NewBuilder("proj")
	for i := 0; i < 3; i++ {
		b.Commit(fmt.Sprintf("a%d", i), "alice@example.com", monday.AddDate(0, 0, i),
			activity.FileSpec{Path: "a.ts", Added: 10, Removed: 2})
	}
	night := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	b.Commit("b0", "bob@example.com", night, activity.FileSpec{Path: "a.ts", Added: 1}, activity.FileSpec{Path: "pkg/x.go", Added: 5})
	b.Commit("b1", "bob@example.com", night.AddDate(0, 0, 1), activity.FileSpec{Path: "pkg/x.go", Added: 5})
	if withSessions {
		b.Session("alice@example.com", monday.Add(-time.Hour), monday.Add(time.Hour))
		b.Session("bob@example.com", monday, monday.Add(2*time.Hour))
	}
	rng := weekRange()
	return ComputeDevelopers(testSession(rng), snapshotOf(t, b, rng), DefaultConfig().Developer)
}

func byHash(patterns []*types.DeveloperPattern, email string) *types.DeveloperPattern {
	h := types.HashIdentity(email)
	for _, p := range patterns {
		if p.DeveloperHash == h {
			return p
		}
	}
	return nil
}

func TestComputeDevelopers(t *testing.T) {
	patterns := developerFixture(t, false)
	require.Len(t, patterns, 2)

	alice := byHash(patterns, "alice@example.com")
	bob := byHash(patterns, "bob@example.com")
	require.NotNil(t, alice)
	require.NotNil(t, bob)

	assert.Equal(t, 3, alice.CommitCount)
	assert.Equal(t, 30, alice.LinesAdded)
	assert.Equal(t, 6, alice.LinesRemoved)
	assert.Equal(t, 24, alice.NetLines())
	assert.InDelta(t, 12, alice.AvgCommitSize, 1e-9)
	assert.Equal(t, 1, alice.UniqueFiles)
	assert.Equal(t, 0, alice.ExclusiveFiles)
	assert.Equal(t, []string{"a.ts"}, alice.SpecialtyFiles)
	assert.Equal(t, []string{bob.DeveloperHash}, alice.Collaborators)
	assert.InDelta(t, 1.0, alice.SpecializationScore, 1e-9)
	assert.InDelta(t, 0.5, alice.KnowledgeBreadth, 1e-9)
	assert.InDelta(t, 1.0, alice.CollaborationScore, 1e-9)
	assert.InDelta(t, 0, alice.TemporalOverlap, 1e-9)
	assert.InDelta(t, 0.4, alice.KnowledgeSiloRisk, 1e-9)
	assert.Equal(t, types.ScheduleBusinessHours, alice.WorkSchedule)

	assert.Equal(t, 2, bob.UniqueFiles)
	assert.Equal(t, 1, bob.ExclusiveFiles)
	assert.InDelta(t, 0.7, bob.KnowledgeSiloRisk, 1e-9)
	assert.Equal(t, []int{23}, bob.PreferredHours)
	assert.Equal(t, types.ScheduleNightOwl, bob.WorkSchedule)
	assert.Equal(t, []string{"pkg/x.go"}, bob.SpecialtyFiles)

	for _, p := range patterns {
		require.NoError(t, p.Validate())
	}
}

func TestComputeDevelopersUsesSessionOverlap(t *testing.T) {
	patterns := developerFixture(t, true)
	alice := byHash(patterns, "alice@example.com")
	require.NotNil(t, alice)

	// 1h shared out of 3h combined.
	assert.InDelta(t, 1.0/3.0, alice.TemporalOverlap, 1e-9)
	assert.InDelta(t, 0.4*(1-1.0/3.0), alice.KnowledgeSiloRisk, 1e-9)
}

func TestClassifySchedule(t *testing.T) {
	assert.Equal(t, types.ScheduleBusinessHours, ClassifySchedule([]int{9, 12, 17}))
	assert.Equal(t, types.ScheduleNightOwl, ClassifySchedule([]int{1, 23, 14}))
	assert.Equal(t, types.ScheduleFlexible, ClassifySchedule([]int{8, 12, 19}))
	assert.Equal(t, types.ScheduleFlexible, ClassifySchedule(nil))
}

func TestComputeMagnitudes(t *testing.T) {
	b := activity.NewBuilder("proj")
	sizes := []int{10, 12, 8, 10}
	for i, n := range sizes {
		b.Commit(fmt.Sprintf("h%d", i), "alice@example.com", monday.AddDate(0, 0, i),
			activity.FileSpec{Path: "hot.go", Added: n, Removed: n / 2})
	}
	b.Commit("q1", "bob@example.com", monday.Add(time.Hour), activity.FileSpec{Path: "quiet.go", Added: 400})
	rng := weekRange()

	patterns := ComputeMagnitudes(testSession(rng), snapshotOf(t, b, rng))
	require.Len(t, patterns, 2)
	hot, quiet := patterns[0], patterns[1]
	require.Equal(t, "hot.go", hot.FilePath)
	require.Equal(t, "quiet.go", quiet.FilePath)

	assert.Equal(t, 4, hot.ChangeCount)
	assert.InDelta(t, 4.0, hot.ChangeFrequency, 1e-9)
	assert.Equal(t, 1, hot.ContributorCount)
	assert.InDelta(t, 0, hot.ContributorDiversity, 1e-9)
	assert.InDelta(t, 1-hot.VolatilityScore, hot.StabilityScore, 1e-9)
	// Top frequency, bottom churn.
	assert.InDelta(t, 0.85, hot.HotspotScore, 1e-9)
	assert.Equal(t, types.RiskHigh, hot.RiskLevel)

	assert.InDelta(t, 0.65, quiet.HotspotScore, 1e-9)
	assert.InDelta(t, 0, quiet.VolatilityScore, 1e-9)
	assert.InDelta(t, 0, quiet.TechnicalDebt, 1e-9)
	assert.InDelta(t, hot.AnomalyScore, quiet.AnomalyScore, 1e-9)
	assert.Equal(t, types.RiskMedium, quiet.RiskLevel)

	for _, p := range patterns {
		assert.Equal(t, types.TrendStable, p.Trend)
		require.NoError(t, p.Validate())
	}
}

func TestClassifyFileRisk(t *testing.T) {
	assert.Equal(t, types.RiskCritical, ClassifyFileRisk(0.95, 0, 0))
	assert.Equal(t, types.RiskCritical, ClassifyFileRisk(0, 0.96, 0))
	assert.Equal(t, types.RiskHigh, ClassifyFileRisk(0, 0, 0.85))
	assert.Equal(t, types.RiskMedium, ClassifyFileRisk(0, 0.65, 0))
	assert.Equal(t, types.RiskLow, ClassifyFileRisk(0.2, 0.3, 0.1))
}

func historySeries(values ...float64) []types.FileHistoryPoint {
	out := make([]types.FileHistoryPoint, len(values))
	for i, v := range values {
		out[i] = types.FileHistoryPoint{FilePath: "f.go", PeriodEnd: monday.AddDate(0, 0, 7*i), ChangeFrequency: v}
	}
	return out
}

func TestClassifyTrend(t *testing.T) {
	cfg := DefaultConfig().Magnitude

	tests := []struct {
		name   string
		series []types.FileHistoryPoint
		want   types.TrendDirection
	}{
		{"too short", historySeries(1, 5), types.TrendStable},
		{"increasing", historySeries(1, 2, 3, 4), types.TrendIncreasing},
		{"decreasing", historySeries(8, 6, 4, 2), types.TrendDecreasing},
		{"cyclical", historySeries(1, 5, 1, 5, 1, 5), types.TrendCyclical},
		{"volatile", historySeries(1, 10, 1), types.TrendVolatile},
		{"flat", historySeries(2, 2, 2), types.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ClassifyTrend(tt.series, cfg)
			assert.Equal(t, tt.want, got)
		})
	}

	// Order of the input does not matter.
	reversed := historySeries(1, 2, 3, 4)
	reversed[0], reversed[3] = reversed[3], reversed[0]
	got, slope := ClassifyTrend(reversed, cfg)
	assert.Equal(t, types.TrendIncreasing, got)
	assert.InDelta(t, 1.0, slope, 1e-9)
}
