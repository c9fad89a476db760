// Package engine wires the discovery, insight, alerting and dashboard
// components over one store and exposes the caller-facing operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/alerting"
	"github.com/steveyegge/devpulse/internal/dashboard"
	"github.com/steveyegge/devpulse/internal/discovery"
	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/insights"
	"github.com/steveyegge/devpulse/internal/scheduler"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/storage/sqlite"
	"github.com/steveyegge/devpulse/internal/types"
)

// Options configures New. Nil configs use each package's defaults.
type Options struct {
	// Source is where discovery reads activity. Nil reads the activity
	// imported into the store.
	Source activity.Source

	Discovery *discovery.Config
	Insights  *insights.Config
	Alerting  *alerting.Config
	Dashboard *dashboard.Config
	Scheduler *scheduler.Config

	Logger *slog.Logger
}

// Engine is the entry point used by the CLI and the serve loop.
type Engine struct {
	store     storage.Storage
	coord     *discovery.Coordinator
	synth     *insights.Synthesizer
	alerts    *alerting.Engine
	agg       *dashboard.Aggregator
	refresher *dashboard.Refresher
	sched     *scheduler.Scheduler
	loader    activity.LoaderConfig
	logger    *slog.Logger
}

// New builds every component over store.
func New(store storage.Storage, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	source := opts.Source
	if source == nil {
		source = store
	}
	discoveryCfg := opts.Discovery
	if discoveryCfg == nil {
		discoveryCfg = discovery.DefaultConfig()
	}

	synth, err := insights.NewSynthesizer(store, opts.Insights, logger)
	if err != nil {
		return nil, err
	}
	coord, err := discovery.NewCoordinator(store, source, nil, synth, discoveryCfg, logger)
	if err != nil {
		return nil, err
	}
	alerts, err := alerting.NewEngine(store, opts.Alerting, logger)
	if err != nil {
		return nil, err
	}
	agg, err := dashboard.NewAggregator(store, opts.Dashboard, logger)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(store, agg, synth, alerts, opts.Scheduler, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:     store,
		coord:     coord,
		synth:     synth,
		alerts:    alerts,
		agg:       agg,
		refresher: dashboard.NewRefresher(agg),
		sched:     sched,
		loader:    discoveryCfg.Loader,
		logger:    logger.With("component", "engine"),
	}, nil
}

// SetClock overrides the clock of every time-dependent component.
func (e *Engine) SetClock(now func() time.Time) {
	e.synth.SetClock(now)
	e.alerts.SetClock(now)
	e.refresher.SetClock(now)
	e.sched.SetClock(now)
}

// Store returns the underlying store.
func (e *Engine) Store() storage.Storage { return e.store }

// Scheduler returns the periodic job runner.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// Import copies the activity of project within rng from source into the
// local store, so later discovery runs can read it without the source.
func (e *Engine) Import(ctx context.Context, source activity.Source, project string, rng types.CommitRange) (*sqlite.ImportStats, error) {
	loader, err := activity.NewLoader(source, e.loader, e.logger)
	if err != nil {
		return nil, err
	}
	snap, err := loader.Load(ctx, project, rng)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.ImportActivity(ctx, snap.Batch())
	if err != nil {
		return nil, err
	}
	e.logger.Info("activity imported", "project", project,
		"commits", stats.Commits, "file_changes", stats.FileChanges, "sessions", stats.Sessions)
	return stats, nil
}

// RunDiscovery mines the project's activity within [start, end]. A run for
// a range and algorithm version that already has a running or completed
// session returns that session instead. On failure the result still holds
// the failed session.
func (e *Engine) RunDiscovery(ctx context.Context, project string, start, end time.Time, refresh bool) (*discovery.Result, error) {
	return e.coord.Run(ctx, discovery.Request{
		Project: project,
		Range:   types.CommitRange{Start: start, End: end},
		Refresh: refresh,
	})
}

// Sessions lists discovery sessions.
func (e *Engine) Sessions(ctx context.Context, filter types.SessionFilter) ([]*types.DiscoverySession, error) {
	return e.store.ListSessions(ctx, filter)
}

// Patterns holds the result of GetPatterns; only the requested family is set.
type Patterns struct {
	Family          types.PatternFamily
	Cooccurrence    []*types.CooccurrencePattern
	Temporal        []*types.TemporalPattern
	Developer       []*types.DeveloperPattern
	ChangeMagnitude []*types.ChangeMagnitudePattern
}

// Len is the number of patterns returned.
func (p *Patterns) Len() int {
	return len(p.Cooccurrence) + len(p.Temporal) + len(p.Developer) + len(p.ChangeMagnitude)
}

// GetPatterns lists one family's patterns. An empty filter session id reads
// the project's latest completed session.
func (e *Engine) GetPatterns(ctx context.Context, family types.PatternFamily, filter types.PatternFilter) (*Patterns, error) {
	if filter.Project == "" && filter.SessionID == "" {
		return nil, fmt.Errorf("%w: project or session id is required", types.ErrInvalidInput)
	}
	out := &Patterns{Family: family}
	var err error
	switch family {
	case types.FamilyCooccurrence:
		out.Cooccurrence, err = e.store.ListCooccurrencePatterns(ctx, filter)
	case types.FamilyTemporal:
		out.Temporal, err = e.store.ListTemporalPatterns(ctx, filter)
	case types.FamilyDeveloper:
		out.Developer, err = e.store.ListDeveloperPatterns(ctx, filter)
	case types.FamilyChangeMagnitude:
		out.ChangeMagnitude, err = e.store.ListChangeMagnitudePatterns(ctx, filter)
	default:
		return nil, fmt.Errorf("%w: unknown pattern family %q", types.ErrInvalidInput, family)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetInsights lists insights matching filter.
func (e *Engine) GetInsights(ctx context.Context, filter types.InsightFilter) ([]*types.Insight, error) {
	return e.store.ListInsights(ctx, filter)
}

func (e *Engine) ValidateInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return e.synth.ValidateInsight(ctx, id, notes)
}

func (e *Engine) RejectInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return e.synth.RejectInsight(ctx, id, notes)
}

func (e *Engine) ImplementInsight(ctx context.Context, id, notes string) (*types.Insight, error) {
	return e.synth.ImplementInsight(ctx, id, notes)
}

// RecordMetric stores and classifies a metric, opening or merging an alert
// when it qualifies. The classification is returned even when no alert is
// raised.
func (e *Engine) RecordMetric(ctx context.Context, m *types.Metric) (*types.Classification, error) {
	return e.alerts.RecordMetric(ctx, m)
}

// GetAlerts lists alerts matching filter.
func (e *Engine) GetAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	return e.store.ListAlerts(ctx, filter)
}

func (e *Engine) AcknowledgeAlert(ctx context.Context, id, notes string) (*types.Alert, error) {
	return e.alerts.Acknowledge(ctx, id, notes)
}

func (e *Engine) InvestigateAlert(ctx context.Context, id, notes string) (*types.Alert, error) {
	return e.alerts.Investigate(ctx, id, notes)
}

func (e *Engine) ResolveAlert(ctx context.Context, id, method, notes string) (*types.Alert, error) {
	return e.alerts.Resolve(ctx, id, method, notes)
}

// GetDashboard returns the project's rollup with its staleness computed now.
// force asks for a recomputation, subject to the refresh rate limit.
func (e *Engine) GetDashboard(ctx context.Context, project string, force bool) (*types.DashboardRollup, error) {
	return e.refresher.Get(ctx, project, force)
}

// Sweep runs every maintenance job once.
func (e *Engine) Sweep(ctx context.Context) error {
	return e.sched.RunAll(ctx)
}

// Events lists audit events.
func (e *Engine) Events(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	return e.store.ListEvents(ctx, filter)
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}
