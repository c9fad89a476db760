package types

import "time"

// BacklogKind distinguishes alert and insight backlog entries.
type BacklogKind string

const (
	BacklogAlert   BacklogKind = "alert"
	BacklogInsight BacklogKind = "insight"
)

// BacklogItem is one ranked entry of the open work backlog.
type BacklogItem struct {
	Kind     BacklogKind `json:"kind"`
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Score    float64     `json:"score"`
	Priority int         `json:"priority"`
}

// DashboardRollup is the denormalized per-project summary.
type DashboardRollup struct {
	Project                  string                   `json:"project"`
	SessionID                string                   `json:"session_id,omitempty"`
	GeneratedAt              time.Time                `json:"generated_at"`
	LastAnalysisAt           *time.Time               `json:"last_analysis_at,omitempty"`
	HoursSinceLastAnalysis   *float64                 `json:"hours_since_last_analysis,omitempty"`
	PatternCounts            map[PatternFamily]int    `json:"pattern_counts"`
	FilesByRisk              map[RiskLevel]int        `json:"files_by_risk"`
	DevelopersBySiloGrade    map[string]int           `json:"developers_by_silo_grade"`
	InsightsByRisk           map[RiskLevel]int        `json:"insights_by_risk"`
	InsightsByStatus         map[ValidationStatus]int `json:"insights_by_status"`
	ActiveAlertsBySeverity   map[Severity]int         `json:"active_alerts_by_severity"`
	RefactoringOpportunities int                      `json:"refactoring_opportunities"`
	TechnicalDebtTotal       float64                  `json:"technical_debt_total"`
	TechnicalDebtAverage     float64                  `json:"technical_debt_average"`
	HighDebtFiles            int                      `json:"high_debt_files"`
	Backlog                  []BacklogItem            `json:"backlog"`
}

// SiloGrade converts a knowledge-silo risk into a letter grade.
func SiloGrade(risk float64) string {
	switch {
	case risk < 0.2:
		return "A"
	case risk < 0.4:
		return "B"
	case risk < 0.6:
		return "C"
	case risk < 0.8:
		return "D"
	}
	return "F"
}

// WithStaleness fills HoursSinceLastAnalysis relative to now.
func (r *DashboardRollup) WithStaleness(now time.Time) *DashboardRollup {
	if r.LastAnalysisAt == nil {
		r.HoursSinceLastAnalysis = nil
		return r
	}
	h := now.Sub(*r.LastAnalysisAt).Hours()
	r.HoursSinceLastAnalysis = &h
	return r
}

// ProjectSnapshot is a point-in-time read of everything the dashboard
// aggregates for one project.
type ProjectSnapshot struct {
	Project      string
	Session      *DiscoverySession
	Cooccurrence []*CooccurrencePattern
	Temporal     []*TemporalPattern
	Developers   []*DeveloperPattern
	Files        []*ChangeMagnitudePattern
	Insights     []*Insight
	OpenAlerts   []*Alert
	ReadAt       time.Time
}
