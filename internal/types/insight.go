package types

import (
	"fmt"
	"time"
)

// InsightType is the fixed insight taxonomy.
type InsightType string

const (
	InsightFileCoupling         InsightType = "file_coupling"
	InsightTemporalPattern      InsightType = "temporal_pattern"
	InsightSpecialization       InsightType = "specialization"
	InsightHighRiskFiles        InsightType = "high_risk_files"
	InsightAnomaly              InsightType = "anomaly"
	InsightCollaborationGap     InsightType = "collaboration_gap"
	InsightArchitecturalHotspot InsightType = "architectural_hotspot"
	InsightQualityConcern       InsightType = "quality_concern"
	InsightKnowledgeSilo        InsightType = "knowledge_silo"
	InsightProcessOptimization  InsightType = "process_optimization"
	InsightTechnicalDebt        InsightType = "technical_debt"
	InsightPerformanceRisk      InsightType = "performance_risk"
)

// AllInsightTypes lists the taxonomy in a stable order.
func AllInsightTypes() []InsightType {
	return []InsightType{
		InsightFileCoupling, InsightTemporalPattern, InsightSpecialization, InsightHighRiskFiles,
		InsightAnomaly, InsightCollaborationGap, InsightArchitecturalHotspot, InsightQualityConcern,
		InsightKnowledgeSilo, InsightProcessOptimization, InsightTechnicalDebt, InsightPerformanceRisk,
	}
}

// IsValid checks if the insight type value is valid
func (t InsightType) IsValid() bool {
	for _, v := range AllInsightTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidationStatus is the insight review workflow state.
type ValidationStatus string

const (
	ValidationPending     ValidationStatus = "pending"
	ValidationValidated   ValidationStatus = "validated"
	ValidationRejected    ValidationStatus = "rejected"
	ValidationImplemented ValidationStatus = "implemented"
	ValidationOutdated    ValidationStatus = "outdated"
)

// IsValid checks if the validation status value is valid
func (s ValidationStatus) IsValid() bool {
	switch s {
	case ValidationPending, ValidationValidated, ValidationRejected, ValidationImplemented, ValidationOutdated:
		return true
	}
	return false
}

// CanTransitionTo reports whether an insight may move to next.
// Every state except outdated may become outdated.
func (s ValidationStatus) CanTransitionTo(next ValidationStatus) bool {
	if next == ValidationOutdated {
		return s != ValidationOutdated
	}
	switch s {
	case ValidationPending:
		return next == ValidationValidated || next == ValidationRejected
	case ValidationValidated:
		return next == ValidationImplemented
	}
	return false
}

// CheckInsightTransition returns ErrInvalidTransition for illegal moves.
func CheckInsightTransition(from, to ValidationStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: insight %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Complexity is the estimated implementation effort of a recommendation.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IsValid checks if the complexity value is valid
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// PatternRef points at a supporting pattern row.
type PatternRef struct {
	Family PatternFamily `json:"family"`
	ID     string        `json:"id"`
}

// Insight is a synthesized, reviewable finding.
type Insight struct {
	ID                 string           `json:"id"`
	Project            string           `json:"project"`
	SessionID          string           `json:"session_id"`
	Type               InsightType      `json:"insight_type"`
	SubjectKey         string           `json:"subject_key"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Recommendations    []string         `json:"recommendations"`
	EvidenceCount      int              `json:"evidence_count"`
	Families           []PatternFamily  `json:"families"`
	SupportingPatterns []PatternRef     `json:"supporting_patterns"`
	Confidence         float64          `json:"confidence_score"`
	RiskLevel          RiskLevel        `json:"risk_level"`
	BusinessImpact     RiskLevel        `json:"business_impact"`
	TechnicalImpact    RiskLevel        `json:"technical_impact"`
	Complexity         Complexity       `json:"implementation_complexity"`
	PriorityScore      float64          `json:"priority_score"`
	Priority           int              `json:"priority"` // 0 (highest) - 4 (lowest)
	Status             ValidationStatus `json:"validation_status"`
	ReviewNotes        string           `json:"review_notes,omitempty"`
	ExpiresAt          time.Time        `json:"expires_at"`
	RefreshNeededAt    time.Time        `json:"refresh_needed_at"`
	SupersededBy       string           `json:"superseded_by,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Validate checks if the insight has valid field values
func (i *Insight) Validate() error {
	if i.Project == "" || i.SessionID == "" {
		return invalidf("insight requires project and session")
	}
	if !i.Type.IsValid() {
		return invalidf("invalid insight type: %s", i.Type)
	}
	if i.SubjectKey == "" {
		return invalidf("insight subject key is required")
	}
	if i.Title == "" {
		return invalidf("insight title is required")
	}
	if err := CheckUnit("confidence_score", i.Confidence); err != nil {
		return err
	}
	if err := CheckUnit("priority_score", i.PriorityScore); err != nil {
		return err
	}
	if !i.RiskLevel.IsValid() || !i.BusinessImpact.IsValid() || !i.TechnicalImpact.IsValid() {
		return invalidf("insight %s has invalid risk or impact level", i.Type)
	}
	if !i.Complexity.IsValid() {
		return invalidf("invalid implementation complexity: %s", i.Complexity)
	}
	if i.Priority < 0 || i.Priority > 4 {
		return invalidf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return invalidf("invalid validation status: %s", i.Status)
	}
	if !i.RefreshNeededAt.IsZero() && i.RefreshNeededAt.After(i.ExpiresAt) {
		return fmt.Errorf("%w: refresh_needed_at after expires_at", ErrBoundViolation)
	}
	return nil
}

// IsExpired reports whether the insight has passed its expiry at now.
func (i *Insight) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InsightFilter is used to filter insight queries
type InsightFilter struct {
	Project   string
	SessionID string
	RiskLevel RiskLevel
	Status    ValidationStatus
	Type      InsightType
	Limit     int
}
