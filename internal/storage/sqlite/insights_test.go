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

func testInsight(project, sessionID, subject string, createdAt time.Time) *types.Insight {
	return &types.Insight{
		Project:            project,
		SessionID:          sessionID,
		Type:               types.InsightHighRiskFiles,
		SubjectKey:         subject,
		Title:              "High-risk file " + subject,
		Description:        "frequent large changes",
		Recommendations:    []string{"add tests", "split module"},
		EvidenceCount:      4,
		Families:           []types.PatternFamily{types.FamilyChangeMagnitude},
		SupportingPatterns: []types.PatternRef{{Family: types.FamilyChangeMagnitude, ID: "p1"}},
		Confidence:         0.7,
		RiskLevel:          types.RiskHigh,
		BusinessImpact:     types.RiskHigh,
		TechnicalImpact:    types.RiskMedium,
		Complexity:         types.ComplexityMedium,
		PriorityScore:      0.66,
		Priority:           1,
		CreatedAt:          createdAt,
		ExpiresAt:          createdAt.AddDate(0, 0, 30),
		RefreshNeededAt:    createdAt.AddDate(0, 0, 23),
	}
}

func TestUpsertInsightKeepsReviewState(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	in := testInsight("proj", sess.ID, "core/engine.go", day(30))
	created, err := s.UpsertInsight(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.ValidationPending, in.Status)

	_, err = s.TransitionInsight(ctx, in.ID, types.ValidationValidated, "confirmed by team")
	require.NoError(t, err)

	again := testInsight("proj", sess.ID, "core/engine.go", day(30))
	again.Confidence = 0.8
	created, err = s.UpsertInsight(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, in.ID, again.ID)

	got, err := s.GetInsight(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ValidationValidated, got.Status)
	assert.Equal(t, "confirmed by team", got.ReviewNotes)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Equal(t, []string{"add tests", "split module"}, got.Recommendations)
	assert.Equal(t, []types.PatternRef{{Family: types.FamilyChangeMagnitude, ID: "p1"}}, got.SupportingPatterns)

	createdEvents, err := s.ListEvents(ctx, events.EventFilter{EntityID: in.ID, Type: events.EventTypeInsightCreated})
	require.NoError(t, err)
	assert.Len(t, createdEvents, 1)
}

func TestInsightWorkflow(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	in := testInsight("proj", sess.ID, "a.go", day(30))
	_, err := s.UpsertInsight(ctx, in)
	require.NoError(t, err)

	_, err = s.TransitionInsight(ctx, in.ID, types.ValidationImplemented, "")
	assert.True(t, errors.Is(err, types.ErrInvalidTransition), "pending cannot jump to implemented")

	got, err := s.TransitionInsight(ctx, in.ID, types.ValidationRejected, "not actionable")
	require.NoError(t, err)
	assert.Equal(t, types.ValidationRejected, got.Status)

	_, err = s.TransitionInsight(ctx, in.ID, types.ValidationValidated, "")
	assert.True(t, errors.Is(err, types.ErrInvalidTransition), "rejected is terminal except for outdated")

	_, err = s.TransitionInsight(ctx, "missing", types.ValidationValidated, "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExpireInsights(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)
	sess := startSession(t, s, "proj", day(0), day(30))

	created := day(30)
	in := testInsight("proj", sess.ID, "core/engine.go", created)
	_, err := s.UpsertInsight(ctx, in)
	require.NoError(t, err)

	// Not yet due for refresh
	due, err := s.InsightsNeedingRefresh(ctx, "proj", created.AddDate(0, 0, 22))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Refresh window opens at T+23d
	due, err = s.InsightsNeedingRefresh(ctx, "proj", created.AddDate(0, 0, 23))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, in.ID, due[0].ID)

	expired, err := s.ExpireInsights(ctx, created.AddDate(0, 0, 29))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = s.ExpireInsights(ctx, created.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, []string{in.ID}, expired)

	got, err := s.GetInsight(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ValidationOutdated, got.Status)

	// Expired insights no longer need refresh and are not expired twice
	due, err = s.InsightsNeedingRefresh(ctx, "proj", created.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Empty(t, due)
	expired, err = s.ExpireInsights(ctx, created.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSupersedeInsights(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t)

	s1 := completedSession(t, s, "proj", day(0), day(30))
	old := testInsight("proj", s1.ID, "core/engine.go", day(30))
	_, err := s.UpsertInsight(ctx, old)
	require.NoError(t, err)
	unrelated := testInsight("proj", s1.ID, "docs/readme.md", day(30))
	_, err = s.UpsertInsight(ctx, unrelated)
	require.NoError(t, err)

	s2 := startSession(t, s, "proj", day(0), day(60))
	fresh := testInsight("proj", s2.ID, "core/engine.go", day(60))
	_, err = s.UpsertInsight(ctx, fresh)
	require.NoError(t, err)

	ids, err := s.SupersedeInsights(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, ids)

	got, err := s.GetInsight(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ValidationOutdated, got.Status)
	assert.Equal(t, fresh.ID, got.SupersededBy)

	other, err := s.GetInsight(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ValidationPending, other.Status)

	list, err := s.ListInsights(ctx, types.InsightFilter{Project: "proj", Status: types.ValidationPending})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
