package types

import (
	"math"
	"time"
)

// MetricScope is the granularity a metric is recorded at.
type MetricScope string

const (
	ScopeProject   MetricScope = "project"
	ScopeFile      MetricScope = "file"
	ScopeDirectory MetricScope = "directory"
	ScopeDeveloper MetricScope = "developer"
	ScopeSession   MetricScope = "session"
)

// IsValid checks if the scope value is valid
func (s MetricScope) IsValid() bool {
	switch s {
	case ScopeProject, ScopeFile, ScopeDirectory, ScopeDeveloper, ScopeSession:
		return true
	}
	return false
}

// ChangeSignificance bands the magnitude of percent change from baseline.
type ChangeSignificance string

const (
	SignificanceInsignificant ChangeSignificance = "insignificant"
	SignificanceMinor         ChangeSignificance = "minor"
	SignificanceModerate      ChangeSignificance = "moderate"
	SignificanceSignificant   ChangeSignificance = "significant"
	SignificanceMajor         ChangeSignificance = "major"
)

// IsTrendTrigger reports whether the band alone warrants an alert.
func (c ChangeSignificance) IsTrendTrigger() bool {
	return c == SignificanceSignificant || c == SignificanceMajor
}

// Severity is shared by metric alert flags and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// Bump raises the severity one band, saturating at critical.
func (s Severity) Bump() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	}
	return SeverityCritical
}

// AllSeverities lists severities from lowest to highest.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// ThresholdDirection says which side of the threshold is a breach.
type ThresholdDirection string

const (
	ThresholdAbove ThresholdDirection = "above"
	ThresholdBelow ThresholdDirection = "below"
)

// Metric is a generic (type, scope, period, value) observation.
type Metric struct {
	ID                 string             `json:"id"`
	Project            string             `json:"project" validate:"required"`
	Type               string             `json:"metric_type" validate:"required"`
	Scope              MetricScope        `json:"scope" validate:"required,oneof=project file directory developer session"`
	ScopeID            string             `json:"scope_identifier"`
	PeriodStart        time.Time          `json:"period_start"`
	PeriodEnd          time.Time          `json:"period_end" validate:"omitempty,gtefield=PeriodStart"`
	Value              float64            `json:"value"`
	Unit               string             `json:"unit"`
	Baseline           *float64           `json:"baseline_value,omitempty"`
	Threshold          *float64           `json:"threshold_value,omitempty"`
	ThresholdDirection ThresholdDirection `json:"threshold_direction,omitempty" validate:"omitempty,oneof=above below"`
	PercentileRank     float64            `json:"percentile_rank"`
	PercentChange      float64            `json:"percent_change_from_baseline"`
	ChangeSignificance ChangeSignificance `json:"change_significance"`
	AlertTriggered     bool               `json:"alert_triggered"`
	AlertSeverity      Severity           `json:"alert_severity,omitempty"`
	IsActive           bool               `json:"is_active"`
	RecordedAt         time.Time          `json:"recorded_at"`
}

// ScopeKey identifies the serialization and baseline scope of a metric.
func (m *Metric) ScopeKey() string {
	return m.Project + "|" + m.Type + "|" + string(m.Scope) + "|" + m.ScopeID
}

// Validate checks caller-supplied fields before classification.
func (m *Metric) Validate() error {
	if err := validateStruct(m); err != nil {
		return err
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return invalidf("metric value must be finite")
	}
	if m.Scope != ScopeProject && m.ScopeID == "" {
		return invalidf("scope identifier is required for %s scope", m.Scope)
	}
	if m.Threshold != nil && m.ThresholdDirection == "" {
		m.ThresholdDirection = ThresholdAbove
	}
	return nil
}

// Classification is the synchronous result of recording a metric.
type Classification struct {
	MetricID           string             `json:"metric_id"`
	PercentileRank     float64            `json:"percentile_rank"`
	PercentChange      float64            `json:"percent_change_from_baseline"`
	ChangeSignificance ChangeSignificance `json:"change_significance"`
	AlertTriggered     bool               `json:"alert_triggered"`
	AlertSeverity      Severity           `json:"alert_severity,omitempty"`
	Alert              *Alert             `json:"alert,omitempty"`
	Deduplicated       bool               `json:"deduplicated"`
}

// MetricFilter is used to filter metric queries
type MetricFilter struct {
	Project    string
	Type       string
	Scope      MetricScope
	ScopeID    string
	ActiveOnly bool
	Limit      int
}
