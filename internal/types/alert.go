package types

import (
	"fmt"
	"time"
)

// AlertType names the trigger that raised an alert.
type AlertType string

const (
	AlertThresholdBreach AlertType = "threshold_breach"
	AlertTrendSpike      AlertType = "trend_spike"
	AlertTrendDrop       AlertType = "trend_drop"
)

// AlertStatus is the alert lifecycle state.
type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertInvestigating AlertStatus = "investigating"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
	AlertSuppressed    AlertStatus = "suppressed"
)

// IsValid checks if the alert status value is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertOpen, AlertAcknowledged, AlertInvestigating, AlertResolved, AlertFalsePositive, AlertSuppressed:
		return true
	}
	return false
}

// IsOpen reports whether the alert still counts toward dedup and dashboards.
func (s AlertStatus) IsOpen() bool {
	return s == AlertOpen || s == AlertAcknowledged || s == AlertInvestigating
}

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertOpen:          {AlertAcknowledged, AlertInvestigating},
	AlertAcknowledged:  {AlertInvestigating, AlertResolved, AlertFalsePositive, AlertSuppressed},
	AlertInvestigating: {AlertResolved, AlertFalsePositive, AlertSuppressed},
}

// CanTransitionTo reports whether an alert may move to next.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckAlertTransition returns ErrInvalidTransition for illegal moves.
func CheckAlertTransition(from, to AlertStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: alert %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ResolutionStatus maps a resolution method to its terminal status.
func ResolutionStatus(method string) AlertStatus {
	switch method {
	case string(AlertFalsePositive):
		return AlertFalsePositive
	case string(AlertSuppressed):
		return AlertSuppressed
	}
	return AlertResolved
}

// Urgency describes how quickly an alert needs a human.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// UrgencyFor derives urgency from severity.
func UrgencyFor(s Severity) Urgency {
	switch s {
	case SeverityCritical:
		return UrgencyImmediate
	case SeverityHigh:
		return UrgencyHigh
	case SeverityMedium:
		return UrgencyNormal
	}
	return UrgencyLow
}

// MaxEscalationLevel caps escalation.
const MaxEscalationLevel = 3

// Alert is an actionable notification raised from a metric write.
type Alert struct {
	ID                string      `json:"id"`
	Project           string      `json:"project"`
	Type              AlertType   `json:"alert_type"`
	Severity          Severity    `json:"severity"`
	Urgency           Urgency     `json:"urgency"`
	Title             string      `json:"title"`
	Message           string      `json:"message"`
	MetricID          string      `json:"metric_id,omitempty"`
	MetricType        string      `json:"metric_type"`
	Scope             MetricScope `json:"scope"`
	ScopeID           string      `json:"scope_identifier"`
	TriggerValue      float64     `json:"trigger_value"`
	ThresholdValue    *float64    `json:"threshold_value,omitempty"`
	BaselineValue     *float64    `json:"baseline_value,omitempty"`
	PercentChange     float64     `json:"percent_change"`
	BusinessImpact    RiskLevel   `json:"business_impact"`
	Confidence        float64     `json:"confidence"`
	Status            AlertStatus `json:"status"`
	EscalationLevel   int         `json:"escalation_level"`
	SimilarAlertCount int         `json:"similar_alert_count"`
	RelatedPatternIDs []string    `json:"related_pattern_ids,omitempty"`
	RelatedInsightIDs []string    `json:"related_insight_ids,omitempty"`
	ResolutionMethod  string      `json:"resolution_method,omitempty"`
	ResolutionNotes   string      `json:"resolution_notes,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	LastSeenAt        time.Time   `json:"last_seen_at"`
	AcknowledgedAt    *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
}

// Validate checks if the alert has valid field values
func (a *Alert) Validate() error {
	if a.Project == "" || a.MetricType == "" {
		return invalidf("alert requires project and metric type")
	}
	switch a.Type {
	case AlertThresholdBreach, AlertTrendSpike, AlertTrendDrop:
	default:
		return invalidf("invalid alert type: %s", a.Type)
	}
	if !a.Severity.IsValid() {
		return invalidf("invalid severity: %s", a.Severity)
	}
	if !a.Status.IsValid() {
		return invalidf("invalid alert status: %s", a.Status)
	}
	if a.EscalationLevel < 0 || a.EscalationLevel > MaxEscalationLevel {
		return fmt.Errorf("%w: escalation level %d", ErrBoundViolation, a.EscalationLevel)
	}
	return CheckUnit("confidence", a.Confidence)
}

// AlertFilter is used to filter alert queries
type AlertFilter struct {
	Project  string
	Status   AlertStatus
	Severity Severity
	OpenOnly bool
	Limit    int
}
