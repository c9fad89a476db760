// Package priorities holds the priority formula shared by the insight
// backlog and the alert backlog, so both surfaces rank work the same way.
package priorities

import (
	"math"

	"github.com/steveyegge/devpulse/internal/types"
)

// Weights of the shared formula.
const (
	WeightRisk           = 0.3
	WeightBusinessImpact = 0.3
	WeightConfidence     = 0.2
	WeightEase           = 0.2
)

// Lowest is the lowest priority level (P4); 0 is the highest.
const Lowest = 4

// RiskBand maps a risk or impact level onto [0,1].
func RiskBand(level types.RiskLevel) float64 {
	switch level {
	case types.RiskCritical:
		return 1.0
	case types.RiskHigh:
		return 0.75
	case types.RiskMedium:
		return 0.5
	case types.RiskLow:
		return 0.25
	}
	return 0
}

// EaseBand maps implementation complexity onto [0,1]; easier work scores
// higher.
func EaseBand(c types.Complexity) float64 {
	switch c {
	case types.ComplexityLow:
		return 1.0
	case types.ComplexityMedium:
		return 0.6
	case types.ComplexityHigh:
		return 0.3
	}
	return 0
}

// Score computes
//
//	0.3*RiskBand(risk) + 0.3*RiskBand(business) + 0.2*confidence + 0.2*EaseBand(complexity)
//
// Confidence is clamped to [0,1] so the score stays in [0,1].
func Score(risk, business types.RiskLevel, confidence float64, complexity types.Complexity) float64 {
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	s := WeightRisk*RiskBand(risk) +
		WeightBusinessImpact*RiskBand(business) +
		WeightConfidence*confidence +
		WeightEase*EaseBand(complexity)
	return math.Min(1, math.Max(0, s))
}

// Level maps a score onto P0 (highest) through P4.
func Level(score float64) int {
	switch {
	case score >= 0.8:
		return 0
	case score >= 0.65:
		return 1
	case score >= 0.5:
		return 2
	case score >= 0.35:
		return 3
	}
	return Lowest
}

// Escalate raises a priority by steps levels, capped at P0.
func Escalate(priority, steps int) int {
	if steps < 0 {
		steps = 0
	}
	p := priority - steps
	if p < 0 {
		return 0
	}
	if p > Lowest {
		return Lowest
	}
	return p
}
