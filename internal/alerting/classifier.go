package alerting

import (
	"fmt"
	"math"

	"github.com/steveyegge/devpulse/internal/stats"
	"github.com/steveyegge/devpulse/internal/types"
)

// Outcome is the classification of one metric value.
type Outcome struct {
	// Baseline is the value the change is measured against: the metric's
	// explicit baseline, else the previous active value, else nil.
	Baseline       *float64
	PercentChange  float64
	PercentileRank float64
	Significance   types.ChangeSignificance

	// Threshold is the resolved hard limit, nil when none applies.
	Threshold *Threshold
	Breached  bool

	// AlertType is empty when the write raises no alert.
	AlertType  types.AlertType
	Severity   types.Severity
	Confidence float64
}

// Raises reports whether the write should raise an alert.
func (o *Outcome) Raises() bool {
	return o.AlertType != ""
}

// Classify is the pure classification of m given the previous active value
// of its scope key and the active population of its project and type
// (excluding m's scope key). A threshold breach wins over a trend trigger.
func Classify(m *types.Metric, prev *types.Metric, population []float64, cfg *Config) *Outcome {
	o := &Outcome{PercentileRank: stats.PercentileRank(population, m.Value)}

	switch {
	case m.Baseline != nil:
		b := *m.Baseline
		o.Baseline = &b
	case prev != nil:
		b := prev.Value
		o.Baseline = &b
	}
	if o.Baseline != nil {
		o.PercentChange = PercentChange(m.Value, *o.Baseline)
	}
	o.Significance = Significance(o.PercentChange)

	if th, ok := cfg.ThresholdFor(m); ok {
		o.Threshold = &th
		o.Breached = Breached(m.Value, th)
	}

	switch {
	case o.Breached:
		o.AlertType = types.AlertThresholdBreach
		o.Severity = BreachSeverity(m.Value, *o.Threshold)
		o.Confidence = 0.9
	case o.Significance.IsTrendTrigger():
		o.AlertType = types.AlertTrendSpike
		if o.PercentChange < 0 {
			o.AlertType = types.AlertTrendDrop
		}
		o.Severity = TrendSeverity(o.Significance, o.PercentChange)
		o.Confidence = 0.5 + 0.4*math.Min(1, float64(len(population)+1)/10)
	}
	return o
}

// PercentChange is the change from baseline in percent. A zero baseline
// counts as ±100% for any non-zero value.
func PercentChange(value, baseline float64) float64 {
	if baseline == 0 {
		switch {
		case value > 0:
			return 100
		case value < 0:
			return -100
		}
		return 0
	}
	return (value - baseline) / math.Abs(baseline) * 100
}

// Significance bands |pct|: ≥50 major, ≥25 significant, ≥10 moderate,
// ≥5 minor.
func Significance(pct float64) types.ChangeSignificance {
	a := math.Abs(pct)
	switch {
	case a >= 50:
		return types.SignificanceMajor
	case a >= 25:
		return types.SignificanceSignificant
	case a >= 10:
		return types.SignificanceModerate
	case a >= 5:
		return types.SignificanceMinor
	}
	return types.SignificanceInsignificant
}

// Breached reports whether value is past the threshold. Equal is not a breach.
func Breached(value float64, th Threshold) bool {
	if th.Direction == types.ThresholdBelow {
		return value < th.Value
	}
	return value > th.Value
}

// BreachSeverity grades a breach by the ratio of value to threshold. Above:
// ≥1.5 critical, ≥1.2 high. Below: ≤0.5 critical, ≤0.8 high. Any other
// breach is medium. A zero threshold has no ratio and grades critical.
func BreachSeverity(value float64, th Threshold) types.Severity {
	if th.Value == 0 {
		return types.SeverityCritical
	}
	ratio := value / th.Value
	if th.Direction == types.ThresholdBelow {
		switch {
		case ratio <= 0.5:
			return types.SeverityCritical
		case ratio <= 0.8:
			return types.SeverityHigh
		}
		return types.SeverityMedium
	}
	switch {
	case ratio >= 1.5:
		return types.SeverityCritical
	case ratio >= 1.2:
		return types.SeverityHigh
	}
	return types.SeverityMedium
}

// TrendSeverity grades a trend trigger: a doubling (or worse) is critical,
// other major changes high, significant changes medium.
func TrendSeverity(sig types.ChangeSignificance, pct float64) types.Severity {
	switch {
	case sig == types.SignificanceMajor && math.Abs(pct) >= 100:
		return types.SeverityCritical
	case sig == types.SignificanceMajor:
		return types.SeverityHigh
	case sig == types.SignificanceSignificant:
		return types.SeverityMedium
	}
	return types.SeverityLow
}

// apply copies the classification onto the metric row.
func (o *Outcome) apply(m *types.Metric) {
	m.Baseline = o.Baseline
	m.PercentChange = o.PercentChange
	m.PercentileRank = o.PercentileRank
	m.ChangeSignificance = o.Significance
	m.AlertTriggered = o.Breached
	m.AlertSeverity = o.Severity
	if o.Threshold != nil && m.Threshold == nil {
		v := o.Threshold.Value
		m.Threshold = &v
		m.ThresholdDirection = o.Threshold.Direction
	}
}

// candidate builds the alert a raising outcome proposes.
func (o *Outcome) candidate(m *types.Metric, cfg *Config) *types.Alert {
	a := &types.Alert{
		Project:       m.Project,
		Type:          o.AlertType,
		Severity:      o.Severity,
		Urgency:       types.UrgencyFor(o.Severity),
		MetricID:      m.ID,
		MetricType:    m.Type,
		Scope:         m.Scope,
		ScopeID:       m.ScopeID,
		TriggerValue:  m.Value,
		BaselineValue: o.Baseline,
		PercentChange: o.PercentChange,
		Confidence:    o.Confidence,
		Status:        types.AlertOpen,
	}
	a.BusinessImpact = cfg.BusinessImpactFor(m.Type)
	if o.Threshold != nil {
		v := o.Threshold.Value
		a.ThresholdValue = &v
	}

	subject := m.Type
	if m.ScopeID != "" {
		subject = fmt.Sprintf("%s for %s %s", m.Type, m.Scope, m.ScopeID)
	}
	switch o.AlertType {
	case types.AlertThresholdBreach:
		a.Title = fmt.Sprintf("%s crossed its threshold", subject)
		a.Message = fmt.Sprintf("Value %.4g is %s the threshold %.4g.", m.Value, o.Threshold.Direction, o.Threshold.Value)
	case types.AlertTrendSpike:
		a.Title = fmt.Sprintf("%s spiked", subject)
		a.Message = fmt.Sprintf("Value %.4g is up %.1f%% from baseline %.4g (%s).", m.Value, o.PercentChange, *o.Baseline, o.Significance)
	case types.AlertTrendDrop:
		a.Title = fmt.Sprintf("%s dropped", subject)
		a.Message = fmt.Sprintf("Value %.4g is down %.1f%% from baseline %.4g (%s).", m.Value, -o.PercentChange, *o.Baseline, o.Significance)
	}
	return a
}
