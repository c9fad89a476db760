package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/devpulse/internal/activity"
	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/insights"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/telemetry"
	"github.com/steveyegge/devpulse/internal/types"
)

// Synthesizer turns a session's patterns into insights. It runs after every
// miner has finished.
type Synthesizer interface {
	Synthesize(ctx context.Context, sess *types.DiscoverySession) (*insights.Result, error)
}

// Coordinator runs discovery sessions:
// - Holds the project's single-writer slot for the whole run
// - Loads the activity snapshot once (shared by all miners)
// - Runs miners in parallel, then synthesizes insights
// - Completes the session (supersession) or fails it with timings kept
type Coordinator struct {
	store    storage.Storage
	loader   *activity.Loader
	registry *MinerRegistry
	synth    Synthesizer
	config   *Config
	locks    *projectLocks
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. A nil registry gets the built-in
// miners; a nil synthesizer skips the synthesis phase.
func NewCoordinator(
	store storage.Storage,
	source activity.Source,
	registry *MinerRegistry,
	synth Synthesizer,
	config *Config,
	logger *slog.Logger,
) (*Coordinator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discovery config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "discovery")

	loader, err := activity.NewLoader(source, config.Loader, logger)
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry, err = DefaultRegistry(store, config, logger)
		if err != nil {
			return nil, err
		}
	}
	if _, err := registry.Resolve(config.MinerNames()); err != nil {
		return nil, fmt.Errorf("resolving miners: %w", err)
	}

	return &Coordinator{
		store:    store,
		loader:   loader,
		registry: registry,
		synth:    synth,
		config:   config,
		locks:    newProjectLocks(),
		logger:   logger,
	}, nil
}

// Run executes a discovery session for the request. An existing running,
// refreshing or completed session for the same project, range and algorithm
// version is returned as is (Reused) unless Refresh asks to re-mine a
// completed one.
//
// On failure the returned Result still carries the failed session so callers
// can report its terminal status and error message.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.AlgorithmVersion == "" {
		req.AlgorithmVersion = c.config.AlgorithmVersion
	}
	if err := types.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	if err := CheckAlgorithmVersion(req.AlgorithmVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	req.Range = types.CommitRange{Start: req.Range.Start.UTC(), End: req.Range.End.UTC()}

	release, err := c.locks.acquire(ctx, req.Project)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := c.store.FindSession(ctx, req.Project, req.Range, req.AlgorithmVersion)
	if err != nil {
		return nil, err
	}

	var sess *types.DiscoverySession
	switch {
	case existing != nil && (!req.Refresh || existing.Status != types.SessionCompleted):
		c.logger.Debug("reusing discovery session", "project", req.Project, "session_id", existing.ID,
			"status", existing.Status)
		return &Result{Session: existing, Reused: true}, nil

	case existing != nil:
		sess, err = c.store.BeginRefresh(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if err := c.store.ClearSessionPatterns(ctx, sess.ID); err != nil {
			return c.fail(ctx, &Result{Session: sess}, fmt.Errorf("clearing patterns: %w", err))
		}

	default:
		sess, err = c.BeginSession(ctx, req.Project, req.Range, req.AlgorithmVersion)
		if err != nil {
			return nil, err
		}
	}

	return c.execute(ctx, sess)
}

// BeginSession opens a running session. It fails with types.ErrSessionRunning
// if the project already has one.
func (c *Coordinator) BeginSession(ctx context.Context, project string, rng types.CommitRange, version string) (*types.DiscoverySession, error) {
	sess := &types.DiscoverySession{
		Project:          project,
		Range:            rng,
		AlgorithmVersion: version,
		Status:           types.SessionRunning,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// CompleteSession records the phase timings and pattern count and marks the
// session completed. Returns the ids of sessions it superseded.
func (c *Coordinator) CompleteSession(ctx context.Context, sess *types.DiscoverySession, phases map[string]time.Duration, patternsDiscovered int) ([]string, error) {
	sess.PhaseTimings = phases
	sess.PatternsDiscovered = patternsDiscovered
	superseded, err := c.store.CompleteSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	telemetry.SessionsTotal.WithLabelValues(string(types.SessionCompleted)).Inc()
	return superseded, nil
}

// FailSession marks the session failed with cause. Pattern rows already
// written stay in place.
func (c *Coordinator) FailSession(ctx context.Context, sess *types.DiscoverySession, cause error) error {
	if err := c.store.FailSession(ctx, sess, cause); err != nil {
		return err
	}
	telemetry.SessionsTotal.WithLabelValues(string(types.SessionFailed)).Inc()
	return nil
}

// execute runs the load, mining and synthesis phases for a session that
// already holds the project's slot.
func (c *Coordinator) execute(ctx context.Context, sess *types.DiscoverySession) (*Result, error) {
	start := time.Now()
	logger := c.logger.With("project", sess.Project, "session_id", sess.ID)
	result := &Result{Session: sess}

	runCtx := ctx
	if c.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.config.SessionTimeout)
		defer cancel()
	}

	phases := make(map[string]time.Duration, 3)
	sess.PhaseTimings = phases
	sess.MinerDurations = make(map[string]time.Duration)

	// Phase 1: activity
	phaseStart := time.Now()
	snap, err := c.loader.Load(runCtx, sess.Project, sess.Range)
	phases[types.PhaseLoadActivity] = time.Since(phaseStart)
	if err != nil {
		sess.TotalDuration = time.Since(start)
		return c.fail(ctx, result, fmt.Errorf("loading activity: %w", err))
	}
	sess.CommitsAnalyzed = snap.TotalCommits()
	logger.Info("activity loaded", "commits", snap.TotalCommits(), "file_changes", len(snap.FileChanges))

	// Phase 2: miners, joined before synthesis
	miners, err := c.registry.Resolve(c.config.MinerNames())
	if err != nil {
		sess.TotalDuration = time.Since(start)
		return c.fail(ctx, result, err)
	}
	phaseStart = time.Now()
	result.Miners = c.runMiners(runCtx, logger, &MineInput{Session: sess, Activity: snap}, miners)
	phases[types.PhaseMining] = time.Since(phaseStart)

	var minerErrs []error
	patterns := 0
	for _, r := range result.Miners {
		sess.MinerDurations[r.Miner] = r.Duration
		patterns += r.PatternsWritten
		if r.Err != nil {
			minerErrs = append(minerErrs, fmt.Errorf("miner %s: %w", r.Miner, r.Err))
		}
	}
	sess.PatternsDiscovered = patterns
	if len(minerErrs) > 0 {
		sess.TotalDuration = time.Since(start)
		return c.fail(ctx, result, errors.Join(minerErrs...))
	}

	// Phase 3: insights
	if c.synth != nil {
		phaseStart = time.Now()
		synth, err := c.synth.Synthesize(runCtx, sess)
		phases[types.PhaseSynthesis] = time.Since(phaseStart)
		if err != nil {
			sess.TotalDuration = time.Since(start)
			return c.fail(ctx, result, fmt.Errorf("synthesizing insights: %w", err))
		}
		result.InsightsProduced = len(synth.Insights)
	}

	if err := runCtx.Err(); err != nil {
		sess.TotalDuration = time.Since(start)
		return c.fail(ctx, result, err)
	}

	sess.TotalDuration = time.Since(start)
	superseded, err := c.CompleteSession(context.WithoutCancel(ctx), sess, phases, patterns)
	if err != nil {
		return c.fail(ctx, result, fmt.Errorf("completing session: %w", err))
	}
	result.Superseded = superseded

	logger.Info("discovery completed",
		"patterns", patterns,
		"insights", result.InsightsProduced,
		"superseded", len(superseded),
		"duration", sess.TotalDuration)
	return result, nil
}

// runMiners fans the miners out with bounded parallelism and waits for all
// of them. Miner errors are reported per result; one failure does not stop
// the others.
func (c *Coordinator) runMiners(ctx context.Context, logger *slog.Logger, in *MineInput, miners []Miner) []*MinerResult {
	results := make([]*MinerResult, len(miners))

	var g errgroup.Group
	g.SetLimit(c.config.MaxParallel)
	for i, m := range miners {
		g.Go(func() error {
			start := time.Now()
			res, err := m.Mine(ctx, in)
			if res == nil {
				res = &MinerResult{}
			}
			res.Miner = m.Name()
			res.Family = m.Family()
			res.Duration = time.Since(start)
			res.Err = err
			results[i] = res

			c.recordMinerEvent(ctx, logger, in.Session, res)
			telemetry.MinerDuration.WithLabelValues(res.Miner).Observe(res.Duration.Seconds())
			if err != nil {
				logger.Warn("miner failed", "miner", res.Miner, "error", err)
				return nil
			}
			telemetry.PatternsWritten.WithLabelValues(string(res.Family)).Add(float64(res.PatternsWritten))
			logger.Debug("miner finished", "miner", res.Miner, "patterns", res.PatternsWritten, "duration", res.Duration)
			return nil
		})
	}
	// Goroutines report through results; Wait is the barrier only.
	_ = g.Wait()
	return results
}

// recordMinerEvent writes the miner's outcome to the audit trail. A failed
// write is logged and otherwise ignored.
func (c *Coordinator) recordMinerEvent(ctx context.Context, logger *slog.Logger, sess *types.DiscoverySession, res *MinerResult) {
	data := events.MinerData{
		Miner:      res.Miner,
		Patterns:   res.PatternsWritten,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	ev, err := events.NewMinerEvent(sess.Project, sess.ID, data)
	if err == nil {
		err = c.store.RecordEvent(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		logger.Warn("failed to record miner event", "miner", res.Miner, "error", err)
	}
}

// fail marks the session failed. Cancellation is recorded as such. The
// write uses a context detached from cancellation so a cancelled run still
// reaches a terminal state.
func (c *Coordinator) fail(ctx context.Context, result *Result, cause error) (*Result, error) {
	sess := result.Session
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("cancelled: %w", cause)
	}

	if err := c.FailSession(context.WithoutCancel(ctx), sess, cause); err != nil {
		c.logger.Error("failed to record session failure", "session_id", sess.ID, "error", err)
		return result, errors.Join(cause, err)
	}

	c.logger.Warn("discovery failed", "project", sess.Project, "session_id", sess.ID, "error", cause)
	return result, fmt.Errorf("discovery session %s failed: %w", sess.ID, cause)
}
