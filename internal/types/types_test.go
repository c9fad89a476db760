package types

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRangeValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rng     CommitRange
		wantErr bool
	}{
		{"valid", CommitRange{Start: start, End: start.Add(24 * time.Hour)}, false},
		{"single instant", CommitRange{Start: start, End: start}, false},
		{"end before start", CommitRange{Start: start, End: start.Add(-time.Hour)}, true},
		{"zero start", CommitRange{End: start}, true},
		{"zero end", CommitRange{Start: start}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rng.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCommitRangeSubset(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r1 := CommitRange{Start: base.Add(day), End: base.Add(5 * day)}
	r2 := CommitRange{Start: base, End: base.Add(10 * day)}

	assert.True(t, r1.IsSubsetOf(r2))
	assert.False(t, r2.IsSubsetOf(r1))
	assert.True(t, r1.IsSubsetOf(r1), "a range is a subset of itself")
	assert.True(t, r2.Contains(base))
	assert.True(t, r2.Contains(base.Add(10*day)))
	assert.False(t, r2.Contains(base.Add(11*day)))
	assert.Equal(t, 1.0, CommitRange{Start: base, End: base.Add(day)}.Weeks())
}

func TestHashIdentityNormalizes(t *testing.T) {
	a := HashIdentity("Alice@Example.com ")
	b := HashIdentity("alice@example.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "alice")

	c := &Commit{Author: "Alice", AuthorEmail: "alice@example.com"}
	assert.Equal(t, b, c.DeveloperHash())

	noEmail := &Commit{Author: "Alice"}
	assert.Equal(t, HashIdentity("Alice"), noEmail.DeveloperHash())
}

func TestPseudonymizeIdentity(t *testing.T) {
	p := PseudonymizeIdentity("Alice@Example.com")
	assert.NotContains(t, p, "alice")
	assert.Equal(t, HashIdentity("alice@example.com"), HashIdentity(p))
	assert.Equal(t, p, PseudonymizeIdentity(p))
	assert.Equal(t, "", PseudonymizeIdentity(""))

	c := &Commit{Author: "Alice", AuthorEmail: p}
	assert.Equal(t, HashIdentity("alice@example.com"), c.DeveloperHash())
}

func TestActivityBatchValidate(t *testing.T) {
	now := time.Now()
	ok := &Commit{Project: "p", SHA: "a1", Message: "fix", AuthorDate: now, CommitterDate: now}
	require.NoError(t, (&ActivityBatch{Commits: []*Commit{ok}}).Validate())

	empty := &Commit{Project: "p", SHA: "a2", Message: "  ", AuthorDate: now, CommitterDate: now}
	assert.Error(t, (&ActivityBatch{Commits: []*Commit{empty}}).Validate())

	backwards := &Commit{Project: "p", SHA: "a3", Message: "x", AuthorDate: now, CommitterDate: now.Add(-time.Minute)}
	assert.Error(t, (&ActivityBatch{Commits: []*Commit{backwards}}).Validate())

	badChange := &FileChange{Commit: "a1", FilePath: "x.go", ChangeType: "exploded"}
	assert.Error(t, (&ActivityBatch{FileChanges: []*FileChange{badChange}}).Validate())
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		from SessionStatus
		to   SessionStatus
		ok   bool
	}{
		{SessionRunning, SessionCompleted, true},
		{SessionRunning, SessionFailed, true},
		{SessionRunning, SessionOutdated, false},
		{SessionCompleted, SessionOutdated, true},
		{SessionCompleted, SessionRefreshing, true},
		{SessionCompleted, SessionRunning, false},
		{SessionRefreshing, SessionCompleted, true},
		{SessionRefreshing, SessionFailed, true},
		{SessionFailed, SessionCompleted, false},
		{SessionOutdated, SessionCompleted, false},
	}
	for _, tt := range tests {
		err := CheckSessionTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestCheckPhaseTimings(t *testing.T) {
	phases := map[string]time.Duration{
		PhaseLoadActivity: 100 * time.Millisecond,
		PhaseMining:       800 * time.Millisecond,
		PhaseSynthesis:    100 * time.Millisecond,
	}
	assert.NoError(t, CheckPhaseTimings(phases, time.Second))
	assert.NoError(t, CheckPhaseTimings(phases, 950*time.Millisecond), "within 10% tolerance")

	err := CheckPhaseTimings(phases, 800*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBoundViolation))

	err = CheckPhaseTimings(map[string]time.Duration{PhaseMining: -time.Second}, time.Second)
	assert.True(t, errors.Is(err, ErrBoundViolation))
}

func TestCanonicalPair(t *testing.T) {
	p1, p2, err := CanonicalPair("b.ts", "a.ts")
	require.NoError(t, err)
	assert.Equal(t, "a.ts", p1)
	assert.Equal(t, "b.ts", p2)

	_, _, err = CanonicalPair("a.ts", "a.ts")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.Equal(t, PairHash("a.ts", "b.ts"), PairHash("a.ts", "b.ts"))
	assert.NotEqual(t, PairHash("a.ts", "b.ts"), PairHash("a.t", "sb.ts"))
}

func TestPatternIDDeterministic(t *testing.T) {
	a := PatternID(FamilyCooccurrence, "s1", "k")
	assert.Equal(t, a, PatternID(FamilyCooccurrence, "s1", "k"))
	assert.NotEqual(t, a, PatternID(FamilyCooccurrence, "s2", "k"))
	assert.NotEqual(t, a, PatternID(FamilyTemporal, "s1", "k"))
}

func TestCooccurrencePatternValidate(t *testing.T) {
	valid := func() *CooccurrencePattern {
		return &CooccurrencePattern{
			Project:  "p", SessionID: "s", Path1: "a.ts", Path2: "b.ts",
			PairHash: PairHash("a.ts", "b.ts"), CooccurrenceCount: 8,
			Support:  0.8, Confidence1To2: 0.8, Confidence2To1: 1.0, Lift: 1.0,
			Strength: StrengthWeak,
		}
	}
	require.NoError(t, valid().Validate())

	swapped := valid()
	swapped.Path1, swapped.Path2 = swapped.Path2, swapped.Path1
	assert.True(t, errors.Is(swapped.Validate(), ErrBoundViolation))

	self := valid()
	self.Path2 = self.Path1
	assert.True(t, errors.Is(self.Validate(), ErrBoundViolation))

	zero := valid()
	zero.Support = 0
	assert.True(t, errors.Is(zero.Validate(), ErrBoundViolation))

	over := valid()
	over.Confidence2To1 = 1.2
	assert.True(t, errors.Is(over.Validate(), ErrBoundViolation))
}

func TestTemporalPatternValidate(t *testing.T) {
	p := &TemporalPattern{
		Project:  "p", SessionID: "s", PatternType: TemporalDaily,
		Observed: make([]int, 7), Expected: make([]float64, 7), DegreesOfFreedom: 6,
		PValue:   0.5, StrengthScore: 0.1, Strength: StrengthWeak, Stability: StabilityEmerging,
	}
	require.NoError(t, p.Validate())

	p.PValue = math.NaN()
	assert.True(t, errors.Is(p.Validate(), ErrBoundViolation))
	p.PValue = 0.5

	p.DegreesOfFreedom = 0
	assert.True(t, errors.Is(p.Validate(), ErrBoundViolation))
}

func TestDeveloperPatternValidate(t *testing.T) {
	p := &DeveloperPattern{
		Project:       "p", SessionID: "s", DeveloperHash: HashIdentity("dev@example.com"),
		UniqueFiles:   4, ExclusiveFiles: 2, SpecializationScore: 0.5, KnowledgeBreadth: 0.5,
		Consistency:   0.5, CollaborationScore: 0.5, TemporalOverlap: 0.5, KnowledgeSiloRisk: 0.5,
		WorkSchedule:  ScheduleFlexible,
		FirstCommitAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastCommitAt:  time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
		LinesAdded:    30, LinesRemoved: 10,
	}
	require.NoError(t, p.Validate())
	assert.Equal(t, 20, p.NetLines())
	assert.Equal(t, 10.0, p.TenureDays())

	p.KnowledgeSiloRisk = 1.01
	assert.True(t, errors.Is(p.Validate(), ErrBoundViolation))
}

func TestInsightTransitions(t *testing.T) {
	assert.True(t, ValidationPending.CanTransitionTo(ValidationValidated))
	assert.True(t, ValidationPending.CanTransitionTo(ValidationRejected))
	assert.True(t, ValidationValidated.CanTransitionTo(ValidationImplemented))
	assert.False(t, ValidationPending.CanTransitionTo(ValidationImplemented))
	assert.False(t, ValidationRejected.CanTransitionTo(ValidationValidated))

	for _, s := range []ValidationStatus{ValidationPending, ValidationValidated, ValidationRejected, ValidationImplemented} {
		assert.True(t, s.CanTransitionTo(ValidationOutdated), "%s -> outdated", s)
	}
	assert.False(t, ValidationOutdated.CanTransitionTo(ValidationOutdated))
	assert.False(t, ValidationOutdated.CanTransitionTo(ValidationPending))
}

func TestAlertTransitions(t *testing.T) {
	assert.NoError(t, CheckAlertTransition(AlertOpen, AlertAcknowledged))
	assert.NoError(t, CheckAlertTransition(AlertOpen, AlertInvestigating))
	assert.NoError(t, CheckAlertTransition(AlertAcknowledged, AlertInvestigating))
	assert.NoError(t, CheckAlertTransition(AlertInvestigating, AlertResolved))
	assert.NoError(t, CheckAlertTransition(AlertAcknowledged, AlertFalsePositive))

	assert.ErrorIs(t, CheckAlertTransition(AlertOpen, AlertResolved), ErrInvalidTransition)
	assert.ErrorIs(t, CheckAlertTransition(AlertResolved, AlertOpen), ErrInvalidTransition)
	assert.ErrorIs(t, CheckAlertTransition(AlertSuppressed, AlertInvestigating), ErrInvalidTransition)

	assert.Equal(t, AlertFalsePositive, ResolutionStatus("false_positive"))
	assert.Equal(t, AlertSuppressed, ResolutionStatus("suppressed"))
	assert.Equal(t, AlertResolved, ResolutionStatus("code_fix"))
}

func TestSeverityBump(t *testing.T) {
	assert.Equal(t, SeverityMedium, SeverityLow.Bump())
	assert.Equal(t, SeverityHigh, SeverityMedium.Bump())
	assert.Equal(t, SeverityCritical, SeverityHigh.Bump())
	assert.Equal(t, SeverityCritical, SeverityCritical.Bump())
	assert.Equal(t, UrgencyImmediate, UrgencyFor(SeverityCritical))
}

func TestMetricValidate(t *testing.T) {
	m := &Metric{Project: "p", Type: "churn", Scope: ScopeFile, ScopeID: "a.go", Value: 3}
	require.NoError(t, m.Validate())

	missingScopeID := &Metric{Project: "p", Type: "churn", Scope: ScopeFile, Value: 3}
	assert.ErrorIs(t, missingScopeID.Validate(), ErrInvalidInput)

	badScope := &Metric{Project: "p", Type: "churn", Scope: "galaxy", ScopeID: "x", Value: 3}
	assert.ErrorIs(t, badScope.Validate(), ErrInvalidInput)

	nan := &Metric{Project: "p", Type: "churn", Scope: ScopeProject, Value: math.NaN()}
	assert.ErrorIs(t, nan.Validate(), ErrInvalidInput)

	th := 10.0
	withThreshold := &Metric{Project: "p", Type: "churn", Scope: ScopeProject, Value: 3, Threshold: &th}
	require.NoError(t, withThreshold.Validate())
	assert.Equal(t, ThresholdAbove, withThreshold.ThresholdDirection)

	now := time.Now()
	backwards := &Metric{Project: "p", Type: "churn", Scope: ScopeProject, PeriodStart: now, PeriodEnd: now.Add(-time.Hour)}
	assert.ErrorIs(t, backwards.Validate(), ErrInvalidInput)
}

func TestSiloGradeAndStaleness(t *testing.T) {
	assert.Equal(t, "A", SiloGrade(0.1))
	assert.Equal(t, "C", SiloGrade(0.5))
	assert.Equal(t, "F", SiloGrade(1.0))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &DashboardRollup{LastAnalysisAt: &at}
	r.WithStaleness(at.Add(36 * time.Hour))
	require.NotNil(t, r.HoursSinceLastAnalysis)
	assert.InDelta(t, 36.0, *r.HoursSinceLastAnalysis, 1e-9)

	empty := &DashboardRollup{}
	assert.Nil(t, empty.WithStaleness(at).HoursSinceLastAnalysis)
}
