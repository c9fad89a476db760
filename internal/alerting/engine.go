package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/devpulse/internal/deduplication"
	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/storage/sqlite"
	"github.com/steveyegge/devpulse/internal/telemetry"
	"github.com/steveyegge/devpulse/internal/types"
)

// Engine records metrics, raises and deduplicates alerts, and drives the
// alert lifecycle.
type Engine struct {
	store  storage.Storage
	config *Config
	dedup  *deduplication.Deduplicator
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	scopes map[string]*scopeLock
}

// scopeLock is dropped from Engine.scopes once nobody holds or waits on it.
type scopeLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewEngine creates an alerting engine. A nil config uses DefaultConfig.
func NewEngine(store storage.Storage, config *Config, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alerting config: %w", err)
	}
	dedup, err := deduplication.New(config.Dedup)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		config: config,
		dedup:  dedup,
		logger: logger.With("component", "alerting"),
		now:    func() time.Time { return time.Now().UTC() },
		scopes: make(map[string]*scopeLock),
	}, nil
}

// SetClock overrides the clock used by EscalateUnacknowledged.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = func() time.Time { return now().UTC() }
}

// lockScope serializes writes of one (project, type, scope, scope id) key.
func (e *Engine) lockScope(ctx context.Context, key string) (func(), error) {
	e.mu.Lock()
	l, ok := e.scopes[key]
	if !ok {
		l = &scopeLock{sem: semaphore.NewWeighted(1)}
		e.scopes[key] = l
	}
	l.refs++
	e.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		e.unrefScope(key, l)
		return nil, err
	}
	return func() {
		l.sem.Release(1)
		e.unrefScope(key, l)
	}, nil
}

func (e *Engine) unrefScope(key string, l *scopeLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(e.scopes, key)
	}
}

// RecordMetric classifies and stores m, deactivating the previous value of
// its scope key. When the write raises an alert it is either created or
// merged into the open alert it repeats; either way the alert is returned
// in the classification.
func (e *Engine) RecordMetric(ctx context.Context, m *types.Metric) (*types.Classification, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.PeriodStart, m.PeriodEnd = m.PeriodStart.UTC(), m.PeriodEnd.UTC()

	release, err := e.lockScope(ctx, m.ScopeKey())
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		result  *types.Classification
		outcome string
	)
	err = e.store.WithMetricTx(ctx, func(tx *sqlite.MetricTx) error {
		outcome = ""
		prev, err := tx.PreviousActive(ctx, m)
		if err != nil {
			return err
		}
		population, err := tx.PopulationValues(ctx, m)
		if err != nil {
			return err
		}

		o := Classify(m, prev, population, e.config)
		o.apply(m)
		if err := tx.InsertMetric(ctx, m); err != nil {
			return err
		}

		result = &types.Classification{
			MetricID:           m.ID,
			PercentileRank:     m.PercentileRank,
			PercentChange:      m.PercentChange,
			ChangeSignificance: m.ChangeSignificance,
			AlertTriggered:     m.AlertTriggered,
			AlertSeverity:      m.AlertSeverity,
		}
		if !o.Raises() {
			return nil
		}

		candidate := o.candidate(m, e.config)
		decision, err := e.dedup.Check(ctx, tx, candidate, tx.Now())
		if err != nil {
			return err
		}
		if decision.IsDuplicate {
			a := decision.Existing
			if err := tx.UpdateAlert(ctx, a); err != nil {
				return err
			}
			evType, msg := events.EventTypeAlertDeduplicated, fmt.Sprintf("alert repeated (%d similar)", a.SimilarAlertCount)
			if decision.Quiet {
				msg = fmt.Sprintf("alert repeated after a quiet gap (%d similar)", a.SimilarAlertCount)
			}
			outcome = telemetry.OutcomeDeduplicated
			if decision.Escalated {
				evType, msg = events.EventTypeAlertEscalated, fmt.Sprintf("alert escalated to level %d", a.EscalationLevel)
				outcome = telemetry.OutcomeEscalated
			}
			if err := recordAlertEvent(ctx, tx, evType, a, msg); err != nil {
				return err
			}
			result.Alert = a
			result.Deduplicated = true
			return nil
		}

		if err := tx.CreateAlert(ctx, candidate); err != nil {
			return err
		}
		if err := recordAlertEvent(ctx, tx, events.EventTypeAlertCreated, candidate, candidate.Title); err != nil {
			return err
		}
		outcome = telemetry.OutcomeCreated
		result.Alert = candidate
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording %s metric: %w", m.Type, err)
	}

	telemetry.MetricsClassified.WithLabelValues(string(result.ChangeSignificance)).Inc()
	if result.Alert != nil {
		telemetry.AlertsTotal.WithLabelValues(outcome, string(result.Alert.Severity)).Inc()
		e.logger.Info("alert raised",
			"project", m.Project,
			"alert_id", result.Alert.ID,
			"alert_type", result.Alert.Type,
			"severity", result.Alert.Severity,
			"outcome", outcome)
	}
	return result, nil
}

func recordAlertEvent(ctx context.Context, rec events.Recorder, t events.EventType, a *types.Alert, msg string) error {
	ev, err := events.NewAlertEvent(t, a.Project, a.ID, eventSeverity(a.Severity), msg, events.AlertData{
		AlertType:         string(a.Type),
		MetricType:        a.MetricType,
		ScopeID:           a.ScopeID,
		Severity:          string(a.Severity),
		TriggerValue:      a.TriggerValue,
		SimilarAlertCount: a.SimilarAlertCount,
		EscalationLevel:   a.EscalationLevel,
	})
	if err != nil {
		return err
	}
	return rec.RecordEvent(ctx, ev)
}

func eventSeverity(s types.Severity) events.EventSeverity {
	switch s {
	case types.SeverityCritical:
		return events.SeverityCritical
	case types.SeverityHigh:
		return events.SeverityWarning
	}
	return events.SeverityInfo
}

// EscalateUnacknowledged raises every open alert that has sat untouched for
// longer than its severity's acknowledgement SLA. Returns the escalated ids.
func (e *Engine) EscalateUnacknowledged(ctx context.Context, project string) ([]string, error) {
	now := e.now()
	open, err := e.store.ListAlerts(ctx, types.AlertFilter{Project: project, Status: types.AlertOpen})
	if err != nil {
		return nil, err
	}

	var escalated []string
	for _, a := range open {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		if now.Sub(a.UpdatedAt) < e.config.AckSLA[a.Severity] {
			continue
		}
		if !e.dedup.Escalate(a) {
			continue
		}
		ev, err := events.NewAlertEvent(events.EventTypeAlertEscalated, a.Project, a.ID, eventSeverity(a.Severity),
			fmt.Sprintf("unacknowledged alert escalated to level %d", a.EscalationLevel), events.AlertData{
				AlertType:         string(a.Type),
				MetricType:        a.MetricType,
				ScopeID:           a.ScopeID,
				Severity:          string(a.Severity),
				TriggerValue:      a.TriggerValue,
				SimilarAlertCount: a.SimilarAlertCount,
				EscalationLevel:   a.EscalationLevel,
			})
		if err != nil {
			return escalated, err
		}
		if err := e.store.SaveAlert(ctx, a, ev); err != nil {
			return escalated, fmt.Errorf("escalating alert %s: %w", a.ID, err)
		}
		telemetry.AlertsTotal.WithLabelValues(telemetry.OutcomeEscalated, string(a.Severity)).Inc()
		escalated = append(escalated, a.ID)
	}
	if len(escalated) > 0 {
		e.logger.Warn("alerts escalated", "project", project, "count", len(escalated))
	}
	return escalated, nil
}

// Acknowledge marks an open alert as seen.
func (e *Engine) Acknowledge(ctx context.Context, id, notes string) (*types.Alert, error) {
	return e.store.TransitionAlert(ctx, id, types.AlertAcknowledged, "", notes)
}

// Investigate marks an alert as under investigation.
func (e *Engine) Investigate(ctx context.Context, id, notes string) (*types.Alert, error) {
	return e.store.TransitionAlert(ctx, id, types.AlertInvestigating, "", notes)
}

// Resolve closes an alert. method "false_positive" or "suppressed" selects
// that status; anything else resolves it.
func (e *Engine) Resolve(ctx context.Context, id, method, notes string) (*types.Alert, error) {
	a, err := e.store.TransitionAlert(ctx, id, types.ResolutionStatus(method), method, notes)
	if err != nil {
		return nil, err
	}
	e.logger.Info("alert closed", "alert_id", id, "project", a.Project, "status", a.Status)
	return a, nil
}

// RankBacklog returns the project's open alerts and live insights ordered by
// the shared priority score.
func (e *Engine) RankBacklog(ctx context.Context, project string, limit int) ([]types.BacklogItem, error) {
	alerts, err := e.store.ListAlerts(ctx, types.AlertFilter{Project: project, OpenOnly: true})
	if err != nil {
		return nil, err
	}
	insights, err := e.store.ListInsights(ctx, types.InsightFilter{Project: project})
	if err != nil {
		return nil, err
	}
	return RankBacklog(alerts, insights, limit), nil
}
