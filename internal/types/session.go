package types

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a discovery session.
type SessionStatus string

const (
	SessionRunning    SessionStatus = "running"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionOutdated   SessionStatus = "outdated"
	SessionRefreshing SessionStatus = "refreshing"
)

// IsValid checks if the status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionRunning, SessionCompleted, SessionFailed, SessionOutdated, SessionRefreshing:
		return true
	}
	return false
}

// IsActive reports whether the session currently holds the project's
// single-writer slot.
func (s SessionStatus) IsActive() bool {
	return s == SessionRunning || s == SessionRefreshing
}

// sessionTransitions enumerates legal session state changes.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionRunning:    {SessionCompleted, SessionFailed},
	SessionCompleted:  {SessionOutdated, SessionRefreshing},
	SessionRefreshing: {SessionCompleted, SessionFailed},
}

// CanTransitionTo reports whether the session may move to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckSessionTransition returns ErrInvalidTransition for illegal moves.
func CheckSessionTransition(from, to SessionStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: session %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Phase names recorded in a session's phase timings. Phases are sequential
// stages; per-miner wall times are tracked separately.
const (
	PhaseLoadActivity = "load_activity"
	PhaseMining       = "mining"
	PhaseSynthesis    = "synthesis"
)

// PhaseTolerance bounds the sum of phase durations relative to the total.
const PhaseTolerance = 1.1

// DiscoverySession is a bounded analysis run over a commit range.
type DiscoverySession struct {
	ID                 string                   `json:"id"`
	Project            string                   `json:"project"`
	Range              CommitRange              `json:"range"`
	AlgorithmVersion   string                   `json:"algorithm_version"`
	Status             SessionStatus            `json:"status"`
	PhaseTimings       map[string]time.Duration `json:"phase_timings,omitempty"`
	MinerDurations     map[string]time.Duration `json:"miner_durations,omitempty"`
	TotalDuration      time.Duration            `json:"total_duration"`
	CommitsAnalyzed    int                      `json:"commits_analyzed"`
	PatternsDiscovered int                      `json:"patterns_discovered"`
	ErrorMessage       string                   `json:"error_message,omitempty"`
	SupersededBy       string                   `json:"superseded_by,omitempty"`
	Supersedes         []string                 `json:"supersedes,omitempty"`
	StartedAt          time.Time                `json:"started_at"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
	ArchivedAt         *time.Time               `json:"archived_at,omitempty"`
}

// Validate checks if the session has valid field values
func (s *DiscoverySession) Validate() error {
	if s.Project == "" {
		return invalidf("project is required")
	}
	if err := s.Range.Validate(); err != nil {
		return err
	}
	if s.AlgorithmVersion == "" {
		return invalidf("algorithm version is required")
	}
	if !s.Status.IsValid() {
		return invalidf("invalid session status: %s", s.Status)
	}
	if s.PatternsDiscovered < 0 {
		return invalidf("patterns_discovered cannot be negative")
	}
	return nil
}

// CheckPhaseTimings enforces sum(phases) <= total * PhaseTolerance.
func CheckPhaseTimings(phases map[string]time.Duration, total time.Duration) error {
	var sum time.Duration
	for name, d := range phases {
		if d < 0 {
			return fmt.Errorf("%w: phase %s has negative duration %v", ErrBoundViolation, name, d)
		}
		sum += d
	}
	if float64(sum) > float64(total)*PhaseTolerance {
		return fmt.Errorf("%w: phase durations %v exceed total %v x %.1f",
			ErrBoundViolation, sum, total, PhaseTolerance)
	}
	return nil
}

// SessionFilter is used to filter session queries
type SessionFilter struct {
	Project string
	Status  *SessionStatus
	Limit   int
}
