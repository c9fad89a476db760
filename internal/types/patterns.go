package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PatternFamily names one of the four mined pattern families.
type PatternFamily string

const (
	FamilyCooccurrence    PatternFamily = "cooccurrence"
	FamilyTemporal        PatternFamily = "temporal"
	FamilyDeveloper       PatternFamily = "developer"
	FamilyChangeMagnitude PatternFamily = "change_magnitude"
)

// IsValid checks if the family value is valid
func (f PatternFamily) IsValid() bool {
	switch f {
	case FamilyCooccurrence, FamilyTemporal, FamilyDeveloper, FamilyChangeMagnitude:
		return true
	}
	return false
}

// AllFamilies lists every pattern family in a stable order.
func AllFamilies() []PatternFamily {
	return []PatternFamily{FamilyCooccurrence, FamilyTemporal, FamilyDeveloper, FamilyChangeMagnitude}
}

// PatternStrength is the categorical strength of a pattern.
type PatternStrength string

const (
	StrengthWeak       PatternStrength = "weak"
	StrengthModerate   PatternStrength = "moderate"
	StrengthStrong     PatternStrength = "strong"
	StrengthVeryStrong PatternStrength = "very_strong"
)

// IsValid checks if the strength value is valid
func (s PatternStrength) IsValid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong, StrengthVeryStrong:
		return true
	}
	return false
}

// Rank orders strengths from weak (0) to very_strong (3).
func (s PatternStrength) Rank() int {
	switch s {
	case StrengthModerate:
		return 1
	case StrengthStrong:
		return 2
	case StrengthVeryStrong:
		return 3
	}
	return 0
}

// RiskLevel is shared by change-magnitude patterns, insights and impact fields.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// IsValid checks if the risk level value is valid
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Rank orders risk levels from low (0) to critical (3).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 0
}

// AllRiskLevels lists the levels from lowest to highest.
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// patternNamespace seeds deterministic pattern ids so that re-running a
// miner for the same session yields the same ids.
var patternNamespace = uuid.MustParse("6f1c1f0e-2b7a-4c55-9d0b-6a1b1f3c8e42")

// PatternID derives a deterministic id for a pattern row.
func PatternID(family PatternFamily, sessionID, key string) string {
	return uuid.NewSHA1(patternNamespace, []byte(string(family)+"|"+sessionID+"|"+key)).String()
}

// CanonicalPair orders two paths so that path1 < path2. Self-pairs are rejected.
func CanonicalPair(a, b string) (string, string, error) {
	if a == b {
		return "", "", fmt.Errorf("%w: self-pair %q", ErrInvalidInput, a)
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

// PairHash returns the stable hash of a canonically ordered pair.
func PairHash(path1, path2 string) string {
	sum := sha256.Sum256([]byte(path1 + "\x00" + path2))
	return hex.EncodeToString(sum[:])
}

// CooccurrencePattern describes two files that change together.
type CooccurrencePattern struct {
	ID                 string          `json:"id"`
	Project            string          `json:"project"`
	SessionID          string          `json:"session_id"`
	Path1              string          `json:"path1"`
	Path2              string          `json:"path2"`
	PairHash           string          `json:"pair_hash"`
	CooccurrenceCount  int             `json:"cooccurrence_count"`
	Support            float64         `json:"support"`
	Confidence1To2     float64         `json:"confidence_1_to_2"`
	Confidence2To1     float64         `json:"confidence_2_to_1"`
	Lift               float64         `json:"lift"`
	Strength           PatternStrength `json:"pattern_strength"`
	Bidirectional      bool            `json:"is_bidirectional"`
	ContributingCommit []string        `json:"contributing_commits"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// MaxConfidence returns the larger directional confidence.
func (p *CooccurrencePattern) MaxConfidence() float64 {
	return math.Max(p.Confidence1To2, p.Confidence2To1)
}

// Validate enforces the canonical-pair and metric constraints.
func (p *CooccurrencePattern) Validate() error {
	if p.Project == "" || p.SessionID == "" {
		return invalidf("co-occurrence pattern requires project and session")
	}
	if p.Path1 == p.Path2 {
		return fmt.Errorf("%w: self-pair %q", ErrBoundViolation, p.Path1)
	}
	if !(p.Path1 < p.Path2) {
		return fmt.Errorf("%w: pair (%q, %q) not canonically ordered", ErrBoundViolation, p.Path1, p.Path2)
	}
	if p.PairHash != PairHash(p.Path1, p.Path2) {
		return fmt.Errorf("%w: pair hash mismatch for (%q, %q)", ErrBoundViolation, p.Path1, p.Path2)
	}
	if p.Support <= 0 || p.Confidence1To2 <= 0 || p.Confidence2To1 <= 0 || p.Lift <= 0 {
		return fmt.Errorf("%w: support, confidence and lift must be > 0 for (%q, %q)",
			ErrBoundViolation, p.Path1, p.Path2)
	}
	for name, v := range map[string]float64{
		"support": p.Support, "confidence_1_to_2": p.Confidence1To2, "confidence_2_to_1": p.Confidence2To1,
	} {
		if err := CheckUnit(name, v); err != nil {
			return err
		}
	}
	if !p.Strength.IsValid() {
		return invalidf("invalid pattern strength: %s", p.Strength)
	}
	return nil
}

// TemporalPatternType is the calendar dimension analyzed.
type TemporalPatternType string

const (
	TemporalHourly   TemporalPatternType = "hourly"
	TemporalDaily    TemporalPatternType = "daily"
	TemporalWeekly   TemporalPatternType = "weekly"
	TemporalMonthly  TemporalPatternType = "monthly"
	TemporalSeasonal TemporalPatternType = "seasonal"
)

// IsValid checks if the temporal type value is valid
func (t TemporalPatternType) IsValid() bool {
	switch t {
	case TemporalHourly, TemporalDaily, TemporalWeekly, TemporalMonthly, TemporalSeasonal:
		return true
	}
	return false
}

// AllTemporalTypes lists the temporal dimensions in a stable order.
func AllTemporalTypes() []TemporalPatternType {
	return []TemporalPatternType{TemporalHourly, TemporalDaily, TemporalWeekly, TemporalMonthly, TemporalSeasonal}
}

// Stability classifies how a temporal pattern evolves across sessions.
type Stability string

const (
	StabilityStable    Stability = "stable"
	StabilityEmerging  Stability = "emerging"
	StabilityDeclining Stability = "declining"
	StabilityVolatile  Stability = "volatile"
)

// IsValid checks if the stability value is valid
func (s Stability) IsValid() bool {
	switch s {
	case StabilityStable, StabilityEmerging, StabilityDeclining, StabilityVolatile:
		return true
	}
	return false
}

// TemporalPattern describes the commit-timing distribution along one dimension.
type TemporalPattern struct {
	ID               string              `json:"id"`
	Project          string              `json:"project"`
	SessionID        string              `json:"session_id"`
	PatternType      TemporalPatternType `json:"pattern_type"`
	Observed         []int               `json:"observed"`
	Expected         []float64           `json:"expected"`
	TotalCommits     int                 `json:"total_commits"`
	ChiSquare        float64             `json:"chi_square"`
	DegreesOfFreedom int                 `json:"degrees_of_freedom"`
	PValue           float64             `json:"p_value"`
	StrengthScore    float64             `json:"strength_score"`
	Strength         PatternStrength     `json:"pattern_strength"`
	CoefficientOfVar float64             `json:"coefficient_of_variation"`
	Skewness         float64             `json:"skewness"`
	Kurtosis         float64             `json:"kurtosis"`
	PeakBuckets      []int               `json:"peak_buckets"`
	Stability        Stability           `json:"stability"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Validate enforces the hard statistical contracts.
func (p *TemporalPattern) Validate() error {
	if p.Project == "" || p.SessionID == "" {
		return invalidf("temporal pattern requires project and session")
	}
	if !p.PatternType.IsValid() {
		return invalidf("invalid temporal pattern type: %s", p.PatternType)
	}
	if p.DegreesOfFreedom <= 0 {
		return fmt.Errorf("%w: degrees_of_freedom=%d must be > 0", ErrBoundViolation, p.DegreesOfFreedom)
	}
	if err := CheckUnit("p_value", p.PValue); err != nil {
		return err
	}
	if err := CheckUnit("strength_score", p.StrengthScore); err != nil {
		return err
	}
	if err := CheckNonNegative("chi_square", p.ChiSquare); err != nil {
		return err
	}
	if len(p.Observed) != len(p.Expected) || len(p.Observed) != p.DegreesOfFreedom+1 {
		return fmt.Errorf("%w: bucket count mismatch for %s", ErrBoundViolation, p.PatternType)
	}
	if !p.Strength.IsValid() || !p.Stability.IsValid() {
		return invalidf("invalid strength/stability for %s", p.PatternType)
	}
	return nil
}

// WorkSchedule classifies when a developer is typically active.
type WorkSchedule string

const (
	ScheduleBusinessHours WorkSchedule = "business_hours"
	ScheduleNightOwl      WorkSchedule = "night_owl"
	ScheduleFlexible      WorkSchedule = "flexible"
)

// IsValid checks if the schedule value is valid
func (w WorkSchedule) IsValid() bool {
	switch w {
	case ScheduleBusinessHours, ScheduleNightOwl, ScheduleFlexible:
		return true
	}
	return false
}

// DeveloperPattern profiles one developer within a session.
type DeveloperPattern struct {
	ID                  string       `json:"id"`
	Project             string       `json:"project"`
	SessionID           string       `json:"session_id"`
	DeveloperHash       string       `json:"developer_hash"`
	DisplayName         string       `json:"display_name"`
	CommitCount         int          `json:"commit_count"`
	LinesAdded          int          `json:"lines_added"`
	LinesRemoved        int          `json:"lines_removed"`
	AvgCommitSize       float64      `json:"avg_commit_size"`
	MedianCommitSize    float64      `json:"median_commit_size"`
	StdDevCommitSize    float64      `json:"stddev_commit_size"`
	UniqueFiles         int          `json:"unique_files"`
	ExclusiveFiles      int          `json:"exclusive_files"`
	SpecialtyFiles      []string     `json:"specialty_files"`
	Collaborators       []string     `json:"collaborators"`
	SpecializationScore float64      `json:"specialization_score"`
	KnowledgeBreadth    float64      `json:"knowledge_breadth"`
	ChangeVelocity      float64      `json:"change_velocity"`
	Consistency         float64      `json:"consistency"`
	CollaborationScore  float64      `json:"collaboration_score"`
	TemporalOverlap     float64      `json:"temporal_overlap"`
	KnowledgeSiloRisk   float64      `json:"knowledge_silo_risk"`
	PreferredHours      []int        `json:"preferred_hours"`
	WorkSchedule        WorkSchedule `json:"work_schedule"`
	FirstCommitAt       time.Time    `json:"first_commit_at"`
	LastCommitAt        time.Time    `json:"last_commit_at"`
	CreatedAt           time.Time    `json:"created_at"`
}

// NetLines is added minus removed.
func (p *DeveloperPattern) NetLines() int {
	return p.LinesAdded - p.LinesRemoved
}

// TenureDays is derived from first and last commit dates.
func (p *DeveloperPattern) TenureDays() float64 {
	return p.LastCommitAt.Sub(p.FirstCommitAt).Hours() / 24
}

// Validate enforces score bounds.
func (p *DeveloperPattern) Validate() error {
	if p.Project == "" || p.SessionID == "" || p.DeveloperHash == "" {
		return invalidf("developer pattern requires project, session and developer hash")
	}
	for name, v := range map[string]float64{
		"specialization_score": p.SpecializationScore,
		"knowledge_breadth":    p.KnowledgeBreadth,
		"consistency":          p.Consistency,
		"collaboration_score":  p.CollaborationScore,
		"temporal_overlap":     p.TemporalOverlap,
		"knowledge_silo_risk":  p.KnowledgeSiloRisk,
	} {
		if err := CheckUnit(name, v); err != nil {
			return err
		}
	}
	if err := CheckNonNegative("change_velocity", p.ChangeVelocity); err != nil {
		return err
	}
	if p.ExclusiveFiles > p.UniqueFiles {
		return fmt.Errorf("%w: exclusive files %d exceed unique files %d",
			ErrBoundViolation, p.ExclusiveFiles, p.UniqueFiles)
	}
	if !p.WorkSchedule.IsValid() {
		return invalidf("invalid work schedule: %s", p.WorkSchedule)
	}
	return nil
}

// TrendDirection describes a file's change-frequency trajectory.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
	TrendCyclical   TrendDirection = "cyclical"
)

// IsValid checks if the trend value is valid
func (t TrendDirection) IsValid() bool {
	switch t {
	case TrendIncreasing, TrendDecreasing, TrendStable, TrendVolatile, TrendCyclical:
		return true
	}
	return false
}

// ChangeMagnitudePattern profiles the change history of one file.
type ChangeMagnitudePattern struct {
	ID                   string         `json:"id"`
	Project              string         `json:"project"`
	SessionID            string         `json:"session_id"`
	FilePath             string         `json:"file_path"`
	ChangeCount          int            `json:"change_count"`
	LinesAdded           int            `json:"lines_added"`
	LinesRemoved         int            `json:"lines_removed"`
	AvgLinesChanged      float64        `json:"avg_lines_changed"`
	MedianLinesChanged   float64        `json:"median_lines_changed"`
	StdDevLinesChanged   float64        `json:"stddev_lines_changed"`
	ChangeFrequency      float64        `json:"change_frequency"` // changes per week
	VolatilityScore      float64        `json:"volatility_score"`
	StabilityScore       float64        `json:"stability_score"`
	PredictabilityScore  float64        `json:"predictability_score"`
	AnomalyScore         float64        `json:"anomaly_score"`
	HotspotScore         float64        `json:"hotspot_score"`
	TechnicalDebt        float64        `json:"technical_debt_indicator"`
	ContributorCount     int            `json:"contributor_count"`
	ContributorDiversity float64        `json:"contributor_diversity"`
	Trend                TrendDirection `json:"trend_direction"`
	TrendSlope           float64        `json:"trend_slope"`
	RiskLevel            RiskLevel      `json:"risk_level"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Validate enforces score bounds.
func (p *ChangeMagnitudePattern) Validate() error {
	if p.Project == "" || p.SessionID == "" || p.FilePath == "" {
		return invalidf("change magnitude pattern requires project, session and file path")
	}
	for name, v := range map[string]float64{
		"volatility_score":         p.VolatilityScore,
		"stability_score":          p.StabilityScore,
		"predictability_score":     p.PredictabilityScore,
		"anomaly_score":            p.AnomalyScore,
		"hotspot_score":            p.HotspotScore,
		"technical_debt_indicator": p.TechnicalDebt,
		"contributor_diversity":    p.ContributorDiversity,
	} {
		if err := CheckUnit(name, v); err != nil {
			return err
		}
	}
	if err := CheckNonNegative("change_frequency", p.ChangeFrequency); err != nil {
		return err
	}
	if !p.Trend.IsValid() {
		return invalidf("invalid trend direction: %s", p.Trend)
	}
	if !p.RiskLevel.IsValid() {
		return invalidf("invalid risk level: %s", p.RiskLevel)
	}
	return nil
}

// FileHistoryPoint retains a file's change frequency for one session so
// trends can be computed across sessions.
type FileHistoryPoint struct {
	Project         string    `json:"project"`
	FilePath        string    `json:"file_path"`
	SessionID       string    `json:"session_id"`
	PeriodEnd       time.Time `json:"period_end"`
	ChangeFrequency float64   `json:"change_frequency"`
}

// PatternFilter is used to filter pattern queries. Zero values mean "any".
type PatternFilter struct {
	Project     string
	SessionID   string // empty: latest completed session for the project
	ActiveOnly  bool
	MinStrength PatternStrength
	RiskLevel   RiskLevel
	FilePath    string
	Limit       int
}
