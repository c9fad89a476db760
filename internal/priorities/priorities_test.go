package priorities

import (
	"math"
	"testing"

	"github.com/steveyegge/devpulse/internal/types"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		risk       types.RiskLevel
		business   types.RiskLevel
		confidence float64
		complexity types.Complexity
		want       float64
	}{
		{"all maxed", types.RiskCritical, types.RiskCritical, 1, types.ComplexityLow, 1.0},
		{"all minimal", types.RiskLow, types.RiskLow, 0, types.ComplexityHigh, 0.3*0.25 + 0.3*0.25 + 0.2*0.3},
		{"technically severe, low business impact", types.RiskCritical, types.RiskLow, 0.5, types.ComplexityMedium, 0.3 + 0.075 + 0.1 + 0.12},
		{"confidence clamped", types.RiskHigh, types.RiskHigh, 1.7, types.ComplexityLow, 0.225 + 0.225 + 0.2 + 0.2},
		{"unknown levels count as zero", "", "", 0, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.risk, tt.business, tt.confidence, tt.complexity)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreIsSymmetricInRiskAndBusiness(t *testing.T) {
	a := Score(types.RiskCritical, types.RiskLow, 0.5, types.ComplexityLow)
	b := Score(types.RiskLow, types.RiskCritical, 0.5, types.ComplexityLow)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("risk and business impact carry the same weight: %v != %v", a, b)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{1.0, 0},
		{0.8, 0},
		{0.79, 1},
		{0.65, 1},
		{0.5, 2},
		{0.35, 3},
		{0.34, 4},
		{0, 4},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = P%d, want P%d", tt.score, got, tt.want)
		}
	}
}

func TestEscalate(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		steps    int
		want     int
	}{
		{"one step", 3, 1, 2},
		{"capped at P0", 1, 5, 0},
		{"P0 stays P0", 0, 1, 0},
		{"no steps", 2, 0, 2},
		{"negative steps ignored", 2, -1, 2},
		{"out of range clamps to lowest", 9, 0, Lowest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escalate(tt.priority, tt.steps); got != tt.want {
				t.Errorf("Escalate(%d, %d) = %d, want %d", tt.priority, tt.steps, got, tt.want)
			}
		})
	}
}
