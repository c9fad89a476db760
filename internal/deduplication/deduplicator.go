package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
)

// Finder looks up the newest open alert sharing a candidate's signature,
// however long ago it was last seen. It returns nil, nil when there is
// none. sqlite.MetricTx implements it so the lookup runs on the same
// transaction as the metric write.
type Finder interface {
	FindOpenSimilarAlert(ctx context.Context, candidate *types.Alert) (*types.Alert, error)
}

// Signature is what makes two alerts "the same alert".
type Signature struct {
	Project    string
	AlertType  types.AlertType
	MetricType string
	ScopeID    string
}

// SignatureOf returns the dedup signature of an alert.
func SignatureOf(a *types.Alert) Signature {
	return Signature{Project: a.Project, AlertType: a.Type, MetricType: a.MetricType, ScopeID: a.ScopeID}
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", s.Project, s.AlertType, s.MetricType, s.ScopeID)
}

// Decision is the outcome of checking one candidate alert.
type Decision struct {
	// IsDuplicate is true when an open alert with the same signature exists.
	IsDuplicate bool `json:"is_duplicate"`

	// Existing is the alert the candidate repeats. Only set when IsDuplicate.
	Existing *types.Alert `json:"existing,omitempty"`

	// Quiet is true when the existing alert had not been seen for longer
	// than the window. The repeat is counted but does not escalate.
	Quiet bool `json:"quiet"`

	// Escalated reports whether merging raised the escalation level.
	Escalated bool `json:"escalated"`
}

// Validate checks if the decision is internally consistent
func (d *Decision) Validate() error {
	if d.IsDuplicate && d.Existing == nil {
		return fmt.Errorf("existing alert must be set when is_duplicate is true")
	}
	if !d.IsDuplicate && d.Existing != nil {
		return fmt.Errorf("existing alert should not be set when is_duplicate is false")
	}
	if d.Escalated && !d.IsDuplicate {
		return fmt.Errorf("only a duplicate can be escalated")
	}
	if d.Quiet && !d.IsDuplicate {
		return fmt.Errorf("only a duplicate can follow a quiet gap")
	}
	if d.Quiet && d.Escalated {
		return fmt.Errorf("a repeat after a quiet gap cannot escalate")
	}
	return nil
}

// Deduplicator merges repeating alerts into the open alert they repeat.
type Deduplicator struct {
	config Config
}

// New creates a deduplicator.
func New(config Config) (*Deduplicator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deduplication config: %w", err)
	}
	return &Deduplicator{config: config}, nil
}

// Config returns the active configuration.
func (d *Deduplicator) Config() Config {
	return d.config
}

// Check looks for an open alert the candidate repeats and, when found,
// merges the candidate into it. The caller persists Decision.Existing
// instead of creating the candidate. Only repeats inside the window of the
// previous sighting count toward escalation.
func (d *Deduplicator) Check(ctx context.Context, finder Finder, candidate *types.Alert, now time.Time) (*Decision, error) {
	if candidate == nil {
		return nil, fmt.Errorf("candidate alert is nil")
	}
	if !d.config.Enabled {
		return &Decision{}, nil
	}
	existing, err := finder.FindOpenSimilarAlert(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup for %s: %w", SignatureOf(candidate), err)
	}
	if existing == nil {
		return &Decision{}, nil
	}
	if existing.LastSeenAt.Before(now.Add(-d.config.Window)) {
		d.fold(existing, candidate, now)
		return &Decision{IsDuplicate: true, Existing: existing, Quiet: true}, nil
	}
	escalated := d.Merge(existing, candidate, now)
	return &Decision{IsDuplicate: true, Existing: existing, Escalated: escalated}, nil
}

// Merge folds a repeat into the existing alert: the similar count
// increments, the latest reading replaces the trigger values, and every
// EscalateEvery repeats raise escalation. Severity never drops.
func (d *Deduplicator) Merge(existing, candidate *types.Alert, now time.Time) bool {
	d.fold(existing, candidate, now)
	if d.config.EscalateEvery == 0 || existing.SimilarAlertCount%d.config.EscalateEvery != 0 {
		return false
	}
	return d.Escalate(existing)
}

// fold copies the latest reading onto the existing alert.
func (d *Deduplicator) fold(existing, candidate *types.Alert, now time.Time) {
	existing.SimilarAlertCount++
	existing.LastSeenAt = now
	existing.MetricID = candidate.MetricID
	existing.TriggerValue = candidate.TriggerValue
	existing.ThresholdValue = candidate.ThresholdValue
	existing.BaselineValue = candidate.BaselineValue
	existing.PercentChange = candidate.PercentChange
	existing.Message = candidate.Message
	if candidate.Confidence > existing.Confidence {
		existing.Confidence = candidate.Confidence
	}
	if candidate.Severity.Rank() > existing.Severity.Rank() {
		existing.Severity = candidate.Severity
		existing.Urgency = types.UrgencyFor(existing.Severity)
	}
}

// Escalate raises an alert one escalation level, bumping severity when
// configured. It reports false once the cap is reached.
func (d *Deduplicator) Escalate(a *types.Alert) bool {
	limit := d.config.MaxEscalationLevel
	if limit > types.MaxEscalationLevel {
		limit = types.MaxEscalationLevel
	}
	if a.EscalationLevel >= limit {
		return false
	}
	a.EscalationLevel++
	if d.config.BumpSeverity {
		a.Severity = a.Severity.Bump()
	}
	a.Urgency = types.UrgencyFor(a.Severity)
	return true
}
