package insights

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/telemetry"
	"github.com/steveyegge/devpulse/internal/types"
)

// Result summarizes one synthesis run.
type Result struct {
	Insights   []*types.Insight
	Created    int
	Superseded []string
}

// Synthesizer correlates a session's patterns into insights and manages the
// insight review workflow.
type Synthesizer struct {
	store  storage.Storage
	config *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSynthesizer creates a synthesizer. A nil config uses DefaultConfig.
func NewSynthesizer(store storage.Storage, config *Config, logger *slog.Logger) (*Synthesizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid insights config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		store:  store,
		config: config,
		logger: logger.With("component", "insights"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the clock used for expiry and refresh times.
func (s *Synthesizer) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// Synthesize reads every pattern family of sess and writes the resulting
// insights. Insights of earlier sessions with the same type and subject
// are superseded.
func (s *Synthesizer) Synthesize(ctx context.Context, sess *types.DiscoverySession) (*Result, error) {
	ev, err := LoadEvidence(ctx, s.store, sess)
	if err != nil {
		return nil, err
	}

	proposed := s.Propose(ev)
	result := &Result{Insights: proposed}
	for _, in := range proposed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		created, err := s.store.UpsertInsight(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("writing %s insight %s: %w", in.Type, in.SubjectKey, err)
		}
		if created {
			result.Created++
			telemetry.InsightsGenerated.WithLabelValues(string(in.Type)).Inc()
		}
		superseded, err := s.store.SupersedeInsights(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("superseding %s insight %s: %w", in.Type, in.SubjectKey, err)
		}
		result.Superseded = append(result.Superseded, superseded...)
	}

	s.logger.Info("insights synthesized",
		"project", sess.Project,
		"session_id", sess.ID,
		"insights", len(proposed),
		"created", result.Created,
		"superseded", len(result.Superseded))
	return result, nil
}

// Propose runs every rule over the evidence and returns complete insights
// without writing them. Output is ordered by type, then evidence
// (highest first), then subject.
func (s *Synthesizer) Propose(ev *Evidence) []*types.Insight {
	now := s.now()
	var out []*types.Insight
	for _, t := range types.AllInsightTypes() {
		candidates := rules[t](ev, s.config)
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].evidence != candidates[j].evidence {
				return candidates[i].evidence > candidates[j].evidence
			}
			return candidates[i].insight.SubjectKey < candidates[j].insight.SubjectKey
		})
		if s.config.MaxPerType > 0 && len(candidates) > s.config.MaxPerType {
			candidates = candidates[:s.config.MaxPerType]
		}
		for _, c := range candidates {
			in := c.finish(ev.Session, s.config)
			in.Status = types.ValidationPending
			in.ExpiresAt, in.RefreshNeededAt = s.config.Lifetime(in.Type, now)
			out = append(out, in)
		}
	}
	return out
}
