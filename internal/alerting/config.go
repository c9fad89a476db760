package alerting

import (
	"fmt"
	"time"

	"github.com/steveyegge/devpulse/internal/deduplication"
	"github.com/steveyegge/devpulse/internal/types"
)

// Threshold is the configured hard limit of one metric type. A threshold
// on the metric itself takes precedence.
type Threshold struct {
	Value     float64
	Direction types.ThresholdDirection
}

// Config controls metric classification and alerting.
type Config struct {
	// Thresholds per metric type, used when a metric carries none.
	Thresholds map[string]Threshold

	// BusinessImpact per metric type; metric types not listed use
	// DefaultBusinessImpact.
	BusinessImpact        map[string]types.RiskLevel
	DefaultBusinessImpact types.RiskLevel

	// AckSLA is how long an open alert of each severity may stay
	// unacknowledged before EscalateUnacknowledged raises it.
	AckSLA map[types.Severity]time.Duration

	Dedup deduplication.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Thresholds:            map[string]Threshold{},
		BusinessImpact:        map[string]types.RiskLevel{},
		DefaultBusinessImpact: types.RiskMedium,
		AckSLA: map[types.Severity]time.Duration{
			types.SeverityCritical: time.Hour,
			types.SeverityHigh:     4 * time.Hour,
			types.SeverityMedium:   24 * time.Hour,
			types.SeverityLow:      72 * time.Hour,
		},
		Dedup: deduplication.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for metric, th := range c.Thresholds {
		if th.Direction != types.ThresholdAbove && th.Direction != types.ThresholdBelow {
			return fmt.Errorf("threshold for %s: invalid direction %q", metric, th.Direction)
		}
	}
	if !c.DefaultBusinessImpact.IsValid() {
		return fmt.Errorf("invalid default business impact %q", c.DefaultBusinessImpact)
	}
	for metric, level := range c.BusinessImpact {
		if !level.IsValid() {
			return fmt.Errorf("business impact for %s: invalid level %q", metric, level)
		}
	}
	for _, sev := range types.AllSeverities() {
		if d, ok := c.AckSLA[sev]; !ok || d <= 0 {
			return fmt.Errorf("ack_sla for %s must be positive", sev)
		}
	}
	return c.Dedup.Validate()
}

// ThresholdFor resolves the threshold of m: the metric's own, else the
// metric type's configured one. ok is false when neither exists.
func (c *Config) ThresholdFor(m *types.Metric) (Threshold, bool) {
	if m.Threshold != nil {
		dir := m.ThresholdDirection
		if dir == "" {
			dir = types.ThresholdAbove
		}
		return Threshold{Value: *m.Threshold, Direction: dir}, true
	}
	th, ok := c.Thresholds[m.Type]
	return th, ok
}

// BusinessImpactFor returns the configured business impact of a metric type.
func (c *Config) BusinessImpactFor(metricType string) types.RiskLevel {
	if level, ok := c.BusinessImpact[metricType]; ok {
		return level
	}
	return c.DefaultBusinessImpact
}
