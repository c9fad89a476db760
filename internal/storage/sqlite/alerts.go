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

const alertColumns = `id, project, alert_type, severity, urgency, title, message, metric_id, metric_type,
	scope, scope_identifier, trigger_value, threshold_value, baseline_value, percent_change,
	business_impact, confidence, status, escalation_level, similar_alert_count, related_pattern_ids,
	related_insight_ids, resolution_method, resolution_notes, created_at, updated_at, last_seen_at,
	acknowledged_at, resolved_at`

func scanAlert(sc scanner) (*types.Alert, error) {
	var a types.Alert
	var metricID sql.NullString
	var threshold, baseline sql.NullFloat64
	var patterns, insights string
	var ackAt, resolvedAt sql.NullTime
	if err := sc.Scan(&a.ID, &a.Project, &a.Type, &a.Severity, &a.Urgency, &a.Title, &a.Message, &metricID, &a.MetricType,
		&a.Scope, &a.ScopeID, &a.TriggerValue, &threshold, &baseline, &a.PercentChange,
		&a.BusinessImpact, &a.Confidence, &a.Status, &a.EscalationLevel, &a.SimilarAlertCount, &patterns,
		&insights, &a.ResolutionMethod, &a.ResolutionNotes, &a.CreatedAt, &a.UpdatedAt, &a.LastSeenAt,
		&ackAt, &resolvedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(patterns, &a.RelatedPatternIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(insights, &a.RelatedInsightIDs); err != nil {
		return nil, err
	}
	a.MetricID = metricID.String
	a.ThresholdValue = floatPtr(threshold)
	a.BaselineValue = floatPtr(baseline)
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedAt = timePtr(resolvedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.LastSeenAt = a.LastSeenAt.UTC()
	return &a, nil
}

func insertAlert(ctx context.Context, q querier, a *types.Alert, now time.Time) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = types.AlertOpen
	}
	if a.Urgency == "" {
		a.Urgency = types.UrgencyFor(a.Severity)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.LastSeenAt.IsZero() {
		a.LastSeenAt = now
	}
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Project, a.Type, a.Severity, a.Urgency, a.Title, a.Message, nullableString(a.MetricID), a.MetricType,
		a.Scope, a.ScopeID, a.TriggerValue, nullableFloat(a.ThresholdValue), nullableFloat(a.BaselineValue), a.PercentChange,
		a.BusinessImpact, a.Confidence, a.Status, a.EscalationLevel, a.SimilarAlertCount,
		mustJSON(nonNilStrings(a.RelatedPatternIDs)), mustJSON(nonNilStrings(a.RelatedInsightIDs)),
		a.ResolutionMethod, a.ResolutionNotes, a.CreatedAt.UTC(), a.UpdatedAt.UTC(), a.LastSeenAt.UTC(),
		nullableTime(a.AcknowledgedAt), nullableTime(a.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func updateAlert(ctx context.Context, q querier, a *types.Alert, now time.Time) error {
	a.UpdatedAt = now
	a.Urgency = types.UrgencyFor(a.Severity)
	if err := a.Validate(); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE alerts SET severity = ?, urgency = ?, title = ?, message = ?, metric_id = ?,
			trigger_value = ?, threshold_value = ?, baseline_value = ?, percent_change = ?, confidence = ?,
			status = ?, escalation_level = ?, similar_alert_count = ?, related_pattern_ids = ?, related_insight_ids = ?,
			resolution_method = ?, resolution_notes = ?, updated_at = ?, last_seen_at = ?,
			acknowledged_at = ?, resolved_at = ?
		WHERE id = ?`,
		a.Severity, a.Urgency, a.Title, a.Message, nullableString(a.MetricID),
		a.TriggerValue, nullableFloat(a.ThresholdValue), nullableFloat(a.BaselineValue), a.PercentChange, a.Confidence,
		a.Status, a.EscalationLevel, a.SimilarAlertCount,
		mustJSON(nonNilStrings(a.RelatedPatternIDs)), mustJSON(nonNilStrings(a.RelatedInsightIDs)),
		a.ResolutionMethod, a.ResolutionNotes, a.UpdatedAt.UTC(), a.LastSeenAt.UTC(),
		nullableTime(a.AcknowledgedAt), nullableTime(a.ResolvedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, types.ErrNotFound)
	}
	return nil
}

func getAlert(ctx context.Context, q querier, id string) (*types.Alert, error) {
	a, err := scanAlert(q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetAlert retrieves an alert by ID
func (s *SQLiteStorage) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	return getAlert(ctx, s.db, id)
}

// ListAlerts returns alerts matching the filter, most severe and newest first.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	return listAlerts(ctx, s.db, filter)
}

func listAlerts(ctx context.Context, q querier, filter types.AlertFilter) ([]*types.Alert, error) {
	var where []string
	var args []interface{}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.OpenOnly {
		where = append(where, "status IN ('open', 'acknowledged', 'investigating')")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		last_seen_at DESC` + limitClause(filter.Limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TransitionAlert moves an alert through its lifecycle. Terminal moves
// record the resolution method and notes; acknowledgement stamps
// acknowledged_at.
func (s *SQLiteStorage) TransitionAlert(ctx context.Context, id string, to types.AlertStatus, method, notes string) (*types.Alert, error) {
	now := s.now()
	var result *types.Alert
	err := s.withImmediateTx(ctx, func(q querier) error {
		a, err := getAlert(ctx, q, id)
		if err != nil {
			return err
		}
		from := a.Status
		if err := types.CheckAlertTransition(from, to); err != nil {
			return err
		}
		a.Status = to
		switch to {
		case types.AlertAcknowledged:
			a.AcknowledgedAt = &now
		case types.AlertResolved, types.AlertFalsePositive, types.AlertSuppressed:
			a.ResolvedAt = &now
			if method == "" {
				method = string(to)
			}
			a.ResolutionMethod = method
			a.ResolutionNotes = notes
		}
		if err := updateAlert(ctx, q, a, now); err != nil {
			return err
		}
		ev, err := events.NewTransitionEvent(events.EventTypeAlertTransition, a.Project, a.ID, events.SeverityInfo,
			fmt.Sprintf("alert %s -> %s", from, to),
			events.TransitionData{From: string(from), To: string(to), Reason: notes})
		if err != nil {
			return err
		}
		result = a
		return insertEvent(ctx, q, ev)
	})
	return result, err
}

// SaveAlert rewrites an alert outside a metric write (escalation sweeps).
func (s *SQLiteStorage) SaveAlert(ctx context.Context, a *types.Alert, ev *events.Event) error {
	now := s.now()
	return s.withImmediateTx(ctx, func(q querier) error {
		if err := updateAlert(ctx, q, a, now); err != nil {
			return err
		}
		return insertEvent(ctx, q, ev)
	})
}
