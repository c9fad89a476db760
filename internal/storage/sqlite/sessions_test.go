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

func TestCreateSessionSingleWriter(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	first := startSession(t, s, "proj", day(0), day(30))

	second := &types.DiscoverySession{
		Project:          "proj",
		Range:            types.CommitRange{Start: day(0), End: day(10)},
		AlgorithmVersion: "1.0.0",
	}
	err := s.CreateSession(ctx, second)
	if !errors.Is(err, types.ErrSessionRunning) {
		t.Fatalf("expected ErrSessionRunning, got %v", err)
	}

	// Other projects are unaffected
	startSession(t, s, "other", day(0), day(10))

	active, err := s.ActiveSession(ctx, "proj")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	// Once the first run finishes, a new one may start
	first.TotalDuration = time.Second
	_, err = s.CompleteSession(ctx, first)
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, second))
}

func TestCreateSessionRejectsInvertedRange(t *testing.T) {
	s := setupTestDB(t)
	sess := &types.DiscoverySession{
		Project:          "proj",
		Range:            types.CommitRange{Start: day(5), End: day(1)},
		AlgorithmVersion: "1.0.0",
	}
	err := s.CreateSession(context.Background(), sess)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompleteSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	sess := startSession(t, s, "proj", day(0), day(30))
	sess.PhaseTimings = map[string]time.Duration{
		types.PhaseLoadActivity: 100 * time.Millisecond,
		types.PhaseMining:       700 * time.Millisecond,
		types.PhaseSynthesis:    150 * time.Millisecond,
	}
	sess.MinerDurations = map[string]time.Duration{"cooccurrence": 300 * time.Millisecond}
	sess.TotalDuration = time.Second
	sess.CommitsAnalyzed = 42
	sess.PatternsDiscovered = 17

	superseded, err := s.CompleteSession(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, superseded)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionCompleted, got.Status)
	assert.Equal(t, 42, got.CommitsAnalyzed)
	assert.Equal(t, 17, got.PatternsDiscovered)
	assert.Equal(t, 700*time.Millisecond, got.PhaseTimings[types.PhaseMining])
	assert.Equal(t, 300*time.Millisecond, got.MinerDurations["cooccurrence"])
	assert.Equal(t, time.Second, got.TotalDuration)
	assert.True(t, got.Range.Start.Equal(day(0)))
	assert.True(t, got.Range.End.Equal(day(30)))
	require.NotNil(t, got.CompletedAt)

	// completed -> completed is not a legal transition
	_, err = s.CompleteSession(ctx, sess)
	assert.True(t, errors.Is(err, types.ErrInvalidTransition), "got %v", err)

	found, err := s.FindSession(ctx, "proj", types.CommitRange{Start: day(0), End: day(30)}, "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sess.ID, found.ID)

	missing, err := s.FindSession(ctx, "proj", types.CommitRange{Start: day(0), End: day(30)}, "2.0.0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCompleteSessionRejectsPhaseOverrun(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	sess := startSession(t, s, "proj", day(0), day(30))
	sess.TotalDuration = time.Second
	sess.PhaseTimings = map[string]time.Duration{
		types.PhaseLoadActivity: 600 * time.Millisecond,
		types.PhaseMining:       600 * time.Millisecond,
	}
	_, err := s.CompleteSession(ctx, sess)
	if !errors.Is(err, types.ErrBoundViolation) {
		t.Fatalf("expected ErrBoundViolation, got %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionRunning, got.Status)
}

func TestCompleteSessionSupersedesSubsetRanges(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	r1 := startSession(t, s, "proj", day(0), day(30))
	require.NoError(t, s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{
		pair(t, "proj", r1.ID, "a.ts", "b.ts"),
		pair(t, "proj", r1.ID, "c.ts", "d.ts"),
	}))
	r1.TotalDuration = time.Second
	_, err := s.CompleteSession(ctx, r1)
	require.NoError(t, err)

	// A disjoint range is not superseded
	other := completedSession(t, s, "proj", day(100), day(120))

	r2 := startSession(t, s, "proj", day(0), day(60))
	require.NoError(t, s.UpsertCooccurrencePatterns(ctx, []*types.CooccurrencePattern{
		pair(t, "proj", r2.ID, "b.ts", "a.ts"),
	}))
	r2.TotalDuration = time.Second
	superseded, err := s.CompleteSession(ctx, r2)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID}, superseded)
	assert.Equal(t, []string{r1.ID}, r2.Supersedes)

	old, err := s.GetSession(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionOutdated, old.Status)
	assert.Equal(t, r2.ID, old.SupersededBy)

	untouched, err := s.GetSession(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionCompleted, untouched.Status)

	// The recomputed pair is inactive in r1; the pair r2 did not recompute stays active
	pairs, err := s.ListCooccurrencePatterns(ctx, types.PatternFilter{SessionID: r1.ID})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	active := map[string]bool{}
	for _, p := range pairs {
		active[p.Path1+"|"+p.Path2] = p.IsActive
	}
	assert.False(t, active["a.ts|b.ts"])
	assert.True(t, active["c.ts|d.ts"])

	latest, err := s.LatestCompletedSession(ctx, "proj")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, r2.ID, latest.ID)

	evs, err := s.ListEvents(ctx, events.EventFilter{EntityID: r1.ID, Type: events.EventTypeSessionOutdated})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestFailSession(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	sess := startSession(t, s, "proj", day(0), day(30))
	sess.PhaseTimings = map[string]time.Duration{types.PhaseLoadActivity: 10 * time.Millisecond}
	require.NoError(t, s.FailSession(ctx, sess, errors.New("activity store unreachable")))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionFailed, got.Status)
	assert.Equal(t, "activity store unreachable", got.ErrorMessage)
	assert.Equal(t, 10*time.Millisecond, got.PhaseTimings[types.PhaseLoadActivity])

	// failed is terminal
	err = s.FailSession(ctx, sess, errors.New("again"))
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	// the project's writer slot is free again
	startSession(t, s, "proj", day(0), day(30))
}

func TestRefreshAndArchive(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	sess := completedSession(t, s, "proj", day(0), day(30))

	refreshing, err := s.BeginRefresh(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionRefreshing, refreshing.Status)

	// A refreshing session holds the writer slot
	err = s.CreateSession(ctx, &types.DiscoverySession{
		Project: "proj", Range: types.CommitRange{Start: day(0), End: day(1)}, AlgorithmVersion: "1.0.0",
	})
	assert.True(t, errors.Is(err, types.ErrSessionRunning), "got %v", err)

	assert.True(t, errors.Is(s.ArchiveSession(ctx, sess.ID), types.ErrInvalidTransition))

	refreshing.TotalDuration = time.Second
	_, err = s.CompleteSession(ctx, refreshing)
	require.NoError(t, err)

	require.NoError(t, s.ArchiveSession(ctx, sess.ID))
	latest, err := s.LatestCompletedSession(ctx, "proj")
	require.NoError(t, err)
	assert.Nil(t, latest, "archived sessions are hidden from latest lookups")

	_, err = s.BeginRefresh(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestFailStaleSessions(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	stale := startSession(t, s, "proj", day(0), day(30))

	s.SetClock(func() time.Time { return now })
	fresh := startSession(t, s, "other", day(0), day(30))

	failed, err := s.FailStaleSessions(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, failed)

	got, err := s.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionRunning, got.Status)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	completedSession(t, s, "proj", day(0), day(10))
	completedSession(t, s, "proj", day(20), day(30))
	startSession(t, s, "proj", day(40), day(50))

	all, err := s.ListSessions(ctx, types.SessionFilter{Project: "proj"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed := types.SessionCompleted
	done, err := s.ListSessions(ctx, types.SessionFilter{Project: "proj", Status: &completed, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, done, 1)
}
