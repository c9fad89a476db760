// Package scheduler runs the periodic maintenance jobs of a long-lived
// devpulse process: dashboard refresh, insight expiry, alert escalation,
// audit event cleanup and failing abandoned discovery sessions.
//
// Each job runs once at start and then on its own ticker. A failing run is
// logged and counted; it never stops the job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/devpulse/internal/alerting"
	"github.com/steveyegge/devpulse/internal/dashboard"
	"github.com/steveyegge/devpulse/internal/insights"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/telemetry"
)

// Job names, also used as the telemetry label.
const (
	JobDashboard     = "dashboard_refresh"
	JobInsightSweep  = "insight_sweep"
	JobEscalation    = "alert_escalation"
	JobEventCleanup  = "event_cleanup"
	JobStaleSessions = "stale_sessions"
)

// Config holds job intervals. A zero interval disables the job.
type Config struct {
	DashboardEvery time.Duration
	SweepEvery     time.Duration
	EscalateEvery  time.Duration

	CleanupEvery   time.Duration
	EventRetention time.Duration

	StaleCheckEvery time.Duration
	// StaleAfter is how long a session may run before it is failed.
	// 0 disables the stale session job.
	StaleAfter time.Duration

	// MaxConcurrent bounds per-project work within one run.
	MaxConcurrent int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DashboardEvery:  15 * time.Minute,
		SweepEvery:      time.Hour,
		EscalateEvery:   5 * time.Minute,
		CleanupEvery:    24 * time.Hour,
		EventRetention:  90 * 24 * time.Hour,
		StaleCheckEvery: 15 * time.Minute,
		StaleAfter:      2 * time.Hour,
		MaxConcurrent:   4,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"dashboard_every":   c.DashboardEvery,
		"sweep_every":       c.SweepEvery,
		"escalate_every":    c.EscalateEvery,
		"cleanup_every":     c.CleanupEvery,
		"stale_check_every": c.StaleCheckEvery,
		"stale_after":       c.StaleAfter,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative (got %v)", name, d)
		}
	}
	if c.CleanupEvery > 0 && c.EventRetention <= 0 {
		return fmt.Errorf("event_retention must be positive when cleanup is enabled")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1 (got %d)", c.MaxConcurrent)
	}
	return nil
}

// Job is one periodic task.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler owns the job loops.
type Scheduler struct {
	store  storage.Storage
	agg    *dashboard.Aggregator
	synth  *insights.Synthesizer
	alerts *alerting.Engine
	config *Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a scheduler. A nil config uses DefaultConfig.
func New(store storage.Storage, agg *dashboard.Aggregator, synth *insights.Synthesizer, alerts *alerting.Engine, config *Config, logger *slog.Logger) (*Scheduler, error) {
	if store == nil || agg == nil || synth == nil || alerts == nil {
		return nil, fmt.Errorf("scheduler requires store, aggregator, synthesizer and alert engine")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  store,
		agg:    agg,
		synth:  synth,
		alerts: alerts,
		config: config,
		logger: logger.With("component", "scheduler"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the clock used for expiry and stale cutoffs.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// Jobs returns the enabled jobs.
func (s *Scheduler) Jobs() []Job {
	all := []Job{
		{Name: JobDashboard, Every: s.config.DashboardEvery, Run: s.RefreshDashboards},
		{Name: JobInsightSweep, Every: s.config.SweepEvery, Run: s.SweepInsights},
		{Name: JobEscalation, Every: s.config.EscalateEvery, Run: s.EscalateAlerts},
		{Name: JobEventCleanup, Every: s.config.CleanupEvery, Run: s.CleanupEvents},
	}
	if s.config.StaleAfter > 0 {
		all = append(all, Job{Name: JobStaleSessions, Every: s.config.StaleCheckEvery, Run: s.FailStaleSessions})
	}
	jobs := all[:0]
	for _, j := range all {
		if j.Every > 0 {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Start launches one loop per enabled job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	jobs := s.Jobs()
	for _, job := range jobs {
		s.wg.Add(1)
		go s.loop(ctx, job, s.stopCh)
	}
	s.logger.Info("scheduler started", "jobs", len(jobs))
	return nil
}

// Stop signals every loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()

	// Run immediately on startup (before first tick)
	_ = s.run(ctx, job)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			_ = s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	telemetry.JobRuns.WithLabelValues(job.Name, telemetry.Result(err)).Inc()
	if err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err)
		return err
	}
	s.logger.Debug("job finished", "job", job.Name, "elapsed", time.Since(start))
	return nil
}

// RunAll runs every enabled job once, in order, and joins their errors.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var errs []error
	for _, job := range s.Jobs() {
		if err := s.run(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
		}
	}
	return errors.Join(errs...)
}

// forEachProject runs fn for every known project, at most MaxConcurrent at
// a time. All projects are attempted; their errors are joined.
func (s *Scheduler) forEachProject(ctx context.Context, fn func(ctx context.Context, project string) error) error {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(int64(s.config.MaxConcurrent))
	var g errgroup.Group
	var mu sync.Mutex
	var errs []error
	for _, project := range projects {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs = append(errs, err)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := fn(ctx, project); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("project %s: %w", project, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RefreshDashboards rebuilds the rollup of every project.
func (s *Scheduler) RefreshDashboards(ctx context.Context) error {
	return s.forEachProject(ctx, func(ctx context.Context, project string) error {
		_, err := s.agg.Refresh(ctx, project)
		return err
	})
}

// SweepInsights outdates expired insights across all projects.
func (s *Scheduler) SweepInsights(ctx context.Context) error {
	_, err := s.synth.Sweep(ctx, "", s.now())
	return err
}

// EscalateAlerts escalates open alerts past their acknowledgement SLA.
func (s *Scheduler) EscalateAlerts(ctx context.Context) error {
	return s.forEachProject(ctx, func(ctx context.Context, project string) error {
		_, err := s.alerts.EscalateUnacknowledged(ctx, project)
		return err
	})
}

// CleanupEvents deletes audit events older than the retention period.
func (s *Scheduler) CleanupEvents(ctx context.Context) error {
	deleted, err := s.store.CleanupEvents(ctx, s.config.EventRetention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("events cleaned up", "deleted", deleted, "retention", s.config.EventRetention)
	}
	return nil
}

// FailStaleSessions fails discovery sessions running longer than StaleAfter.
func (s *Scheduler) FailStaleSessions(ctx context.Context) error {
	failed, err := s.store.FailStaleSessions(ctx, s.now().Add(-s.config.StaleAfter))
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		s.logger.Warn("stale sessions failed", "count", len(failed), "session_ids", failed)
	}
	return nil
}
