package insights

import (
	"context"
	"time"

	"github.com/steveyegge/devpulse/internal/telemetry"
	"github.com/steveyegge/devpulse/internal/types"
)

// ValidateInsight accepts a pending insight.
func (s *Synthesizer) ValidateInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return s.transition(ctx, id, types.ValidationValidated, notes)
}

// RejectInsight dismisses a pending insight.
func (s *Synthesizer) RejectInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return s.transition(ctx, id, types.ValidationRejected, notes)
}

// ImplementInsight records that a validated insight was acted on.
func (s *Synthesizer) ImplementInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return s.transition(ctx, id, types.ValidationImplemented, notes)
}

func (s *Synthesizer) transition(ctx context.Context, id string, to types.ValidationStatus, notes string) (*types.Insight, error) {
	in, err := s.store.TransitionInsight(ctx, id, to, notes)
	if err != nil {
		return nil, err
	}
	s.logger.Info("insight transitioned", "insight_id", id, "project", in.Project, "status", to)
	return in, nil
}

// SweepResult reports what an expiry sweep did.
type SweepResult struct {
	Expired        []string
	NeedingRefresh []*types.Insight
}

// Sweep outdates every insight past its expiry at now and lists the live
// insights that are due for a refresh. An empty project sweeps expiry for
// all projects and lists refreshes for all projects.
func (s *Synthesizer) Sweep(ctx context.Context, project string, now time.Time) (*SweepResult, error) {
	expired, err := s.store.ExpireInsights(ctx, now)
	if err != nil {
		return nil, err
	}
	telemetry.InsightsExpired.Add(float64(len(expired)))

	refresh, err := s.store.InsightsNeedingRefresh(ctx, project, now)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 || len(refresh) > 0 {
		s.logger.Info("insight sweep", "expired", len(expired), "needing_refresh", len(refresh))
	}
	return &SweepResult{Expired: expired, NeedingRefresh: refresh}, nil
}
