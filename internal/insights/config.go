package insights

import (
	"fmt"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
)

const day = 24 * time.Hour

// Config controls insight synthesis.
type Config struct {
	// MinEvidence is the number of corroborating observations a rule needs
	// before it emits an insight.
	MinEvidence int

	// AgreementBonus is added to confidence per additional pattern family
	// supporting the same insight.
	AgreementBonus float64

	// TTL is the lifetime of each insight type.
	TTL map[types.InsightType]time.Duration

	// RefreshLead is how long before expiry an insight is flagged for refresh.
	RefreshLead time.Duration

	// MaxPerType caps how many insights of one type a session can produce,
	// keeping the highest evidence first. 0 means no cap.
	MaxPerType int
}

// DefaultTTL returns the built-in lifetime table.
func DefaultTTL() map[types.InsightType]time.Duration {
	return map[types.InsightType]time.Duration{
		types.InsightHighRiskFiles:        30 * day,
		types.InsightSpecialization:       180 * day,
		types.InsightFileCoupling:         90 * day,
		types.InsightTemporalPattern:      60 * day,
		types.InsightAnomaly:              14 * day,
		types.InsightCollaborationGap:     60 * day,
		types.InsightArchitecturalHotspot: 90 * day,
		types.InsightQualityConcern:       45 * day,
		types.InsightKnowledgeSilo:        90 * day,
		types.InsightProcessOptimization:  120 * day,
		types.InsightTechnicalDebt:        90 * day,
		types.InsightPerformanceRisk:      30 * day,
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MinEvidence:    3,
		AgreementBonus: 0.10,
		TTL:            DefaultTTL(),
		RefreshLead:    7 * day,
		MaxPerType:     25,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinEvidence < 1 {
		return fmt.Errorf("min_evidence must be at least 1 (got %d)", c.MinEvidence)
	}
	if c.AgreementBonus < 0 || c.AgreementBonus > 0.5 {
		return fmt.Errorf("agreement_bonus must be in [0,0.5] (got %v)", c.AgreementBonus)
	}
	if c.RefreshLead < 0 {
		return fmt.Errorf("refresh_lead must be non-negative (got %v)", c.RefreshLead)
	}
	if c.MaxPerType < 0 {
		return fmt.Errorf("max_per_type must be non-negative (got %d)", c.MaxPerType)
	}
	for _, t := range types.AllInsightTypes() {
		ttl, ok := c.TTL[t]
		if !ok {
			return fmt.Errorf("ttl missing for insight type %s", t)
		}
		if ttl <= c.RefreshLead {
			return fmt.Errorf("ttl for %s (%v) must exceed refresh_lead (%v)", t, ttl, c.RefreshLead)
		}
	}
	return nil
}

// Lifetime returns the expiry and refresh times of an insight created at.
func (c *Config) Lifetime(t types.InsightType, at time.Time) (expires, refresh time.Time) {
	expires = at.Add(c.TTL[t])
	return expires, expires.Add(-c.RefreshLead)
}
