package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/types"
)

const metricColumns = `id, project, metric_type, scope, scope_identifier, period_start, period_end, value, unit,
	baseline_value, threshold_value, threshold_direction, percentile_rank, percent_change_from_baseline,
	change_significance, alert_triggered, alert_severity, is_active, recorded_at`

func scanMetric(sc scanner) (*types.Metric, error) {
	var m types.Metric
	var periodStart, periodEnd sql.NullTime
	var baseline, threshold sql.NullFloat64
	var triggered, active int
	if err := sc.Scan(&m.ID, &m.Project, &m.Type, &m.Scope, &m.ScopeID, &periodStart, &periodEnd, &m.Value, &m.Unit,
		&baseline, &threshold, &m.ThresholdDirection, &m.PercentileRank, &m.PercentChange,
		&m.ChangeSignificance, &triggered, &m.AlertSeverity, &active, &m.RecordedAt); err != nil {
		return nil, err
	}
	if periodStart.Valid {
		m.PeriodStart = periodStart.Time.UTC()
	}
	if periodEnd.Valid {
		m.PeriodEnd = periodEnd.Time.UTC()
	}
	m.Baseline = floatPtr(baseline)
	m.Threshold = floatPtr(threshold)
	m.AlertTriggered = triggered == 1
	m.IsActive = active == 1
	m.RecordedAt = m.RecordedAt.UTC()
	return &m, nil
}

func zeroTimeNull(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// MetricTx is the serialized read-classify-write unit for one metric write.
// Every method runs on the same BEGIN IMMEDIATE transaction.
type MetricTx struct {
	q   querier
	now time.Time
}

// Now is the transaction's timestamp.
func (tx *MetricTx) Now() time.Time {
	return tx.now
}

// WithMetricTx runs fn inside one immediate transaction. fn's error rolls
// everything back.
func (s *SQLiteStorage) WithMetricTx(ctx context.Context, fn func(tx *MetricTx) error) error {
	return s.withImmediateTx(ctx, func(q querier) error {
		return fn(&MetricTx{q: q, now: s.now()})
	})
}

// PreviousActive returns the active metric sharing m's scope key, or nil.
func (tx *MetricTx) PreviousActive(ctx context.Context, m *types.Metric) (*types.Metric, error) {
	row := tx.q.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM metrics
		WHERE project = ? AND metric_type = ? AND scope = ? AND scope_identifier = ? AND is_active = 1`,
		m.Project, m.Type, m.Scope, m.ScopeID)
	prev, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous metric: %w", err)
	}
	return prev, nil
}

// PopulationValues returns the values of active metrics of the same project
// and type, excluding m's own scope key.
func (tx *MetricTx) PopulationValues(ctx context.Context, m *types.Metric) ([]float64, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT value FROM metrics
		WHERE project = ? AND metric_type = ? AND is_active = 1
		  AND NOT (scope = ? AND scope_identifier = ?)`,
		m.Project, m.Type, m.Scope, m.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric population: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertMetric deactivates the previous value for m's scope key and inserts m
// as the active one.
func (tx *MetricTx) InsertMetric(ctx context.Context, m *types.Metric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = tx.now
	}
	if err := types.CheckUnit("percentile_rank", m.PercentileRank); err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(ctx, `UPDATE metrics SET is_active = 0
		WHERE project = ? AND metric_type = ? AND scope = ? AND scope_identifier = ? AND is_active = 1`,
		m.Project, m.Type, m.Scope, m.ScopeID); err != nil {
		return fmt.Errorf("failed to deactivate previous metric: %w", err)
	}
	m.IsActive = true
	_, err := tx.q.ExecContext(ctx, `INSERT INTO metrics (`+metricColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		m.ID, m.Project, m.Type, m.Scope, m.ScopeID, zeroTimeNull(m.PeriodStart), zeroTimeNull(m.PeriodEnd),
		m.Value, m.Unit, nullableFloat(m.Baseline), nullableFloat(m.Threshold), m.ThresholdDirection,
		m.PercentileRank, m.PercentChange, m.ChangeSignificance, boolInt(m.AlertTriggered), m.AlertSeverity,
		m.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}
	return nil
}

// FindOpenSimilarAlert returns the most recently seen open alert with the
// same signature, or nil. Open covers acknowledged and investigating.
func (tx *MetricTx) FindOpenSimilarAlert(ctx context.Context, a *types.Alert) (*types.Alert, error) {
	row := tx.q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE project = ? AND alert_type = ? AND metric_type = ? AND scope_identifier = ?
		  AND status IN ('open', 'acknowledged', 'investigating')
		ORDER BY last_seen_at DESC LIMIT 1`,
		a.Project, a.Type, a.MetricType, a.ScopeID)
	existing, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find similar alert: %w", err)
	}
	return existing, nil
}

// CreateAlert inserts a new alert.
func (tx *MetricTx) CreateAlert(ctx context.Context, a *types.Alert) error {
	return insertAlert(ctx, tx.q, a, tx.now)
}

// UpdateAlert rewrites a deduplicated or escalated alert.
func (tx *MetricTx) UpdateAlert(ctx context.Context, a *types.Alert) error {
	return updateAlert(ctx, tx.q, a, tx.now)
}

// RecordEvent stores an audit event inside the transaction.
func (tx *MetricTx) RecordEvent(ctx context.Context, e *events.Event) error {
	return insertEvent(ctx, tx.q, e)
}

// GetMetric retrieves a metric by ID
func (s *SQLiteStorage) GetMetric(ctx context.Context, id string) (*types.Metric, error) {
	m, err := scanMetric(s.db.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM metrics WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metric %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	return m, nil
}

// ListMetrics returns metrics matching the filter, newest first.
func (s *SQLiteStorage) ListMetrics(ctx context.Context, filter types.MetricFilter) ([]*types.Metric, error) {
	var where []string
	var args []interface{}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Type != "" {
		where = append(where, "metric_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, filter.Scope)
	}
	if filter.ScopeID != "" {
		where = append(where, "scope_identifier = ?")
		args = append(args, filter.ScopeID)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	query := `SELECT ` + metricColumns + ` FROM metrics`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC" + limitClause(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var out []*types.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
