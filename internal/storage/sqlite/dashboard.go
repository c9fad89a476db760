package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/devpulse/internal/events"
	"github.com/steveyegge/devpulse/internal/types"
)

// SaveRollup overwrites the project's dashboard rollup.
func (s *SQLiteStorage) SaveRollup(ctx context.Context, r *types.DashboardRollup) error {
	if r.Project == "" {
		return fmt.Errorf("%w: rollup requires project", types.ErrInvalidInput)
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = s.now()
	}
	// staleness is derived on read
	stored := *r
	stored.HoursSinceLastAnalysis = nil
	body, err := toJSON(&stored)
	if err != nil {
		return err
	}
	return s.withImmediateTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO dashboard_rollups (project, rollup, generated_at) VALUES (?, ?, ?)
			ON CONFLICT (project) DO UPDATE SET rollup = excluded.rollup, generated_at = excluded.generated_at
		`, r.Project, body, r.GeneratedAt.UTC()); err != nil {
			return fmt.Errorf("failed to save rollup: %w", err)
		}
		return insertEvent(ctx, q, events.NewEvent(events.EventTypeDashboardRefreshed, r.Project, r.SessionID,
			events.SeverityInfo, "dashboard rollup refreshed"))
	})
}

// GetRollup returns the stored rollup for a project, or nil.
func (s *SQLiteStorage) GetRollup(ctx context.Context, project string) (*types.DashboardRollup, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT rollup FROM dashboard_rollups WHERE project = ?`, project).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollup: %w", err)
	}
	var r types.DashboardRollup
	if err := fromJSON(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadProjectSnapshot reads everything the dashboard aggregates inside one
// read transaction so counts are mutually consistent.
func (s *SQLiteStorage) ReadProjectSnapshot(ctx context.Context, project string) (*types.ProjectSnapshot, error) {
	snap := &types.ProjectSnapshot{Project: project}
	err := s.withReadTx(ctx, func(q querier) error {
		snap.ReadAt = s.now()
		sess, err := latestCompletedSession(ctx, q, project)
		if err != nil {
			return err
		}
		snap.Session = sess
		if sess != nil {
			filter := types.PatternFilter{Project: project, SessionID: sess.ID}
			if snap.Cooccurrence, err = listCooccurrence(ctx, q, types.PatternFilter{Project: project, SessionID: sess.ID, ActiveOnly: true}); err != nil {
				return err
			}
			if snap.Temporal, err = listTemporal(ctx, q, filter); err != nil {
				return err
			}
			if snap.Developers, err = listDevelopers(ctx, q, filter); err != nil {
				return err
			}
			if snap.Files, err = listMagnitude(ctx, q, filter); err != nil {
				return err
			}
		}
		if snap.Insights, err = listInsights(ctx, q, types.InsightFilter{Project: project}); err != nil {
			return err
		}
		snap.OpenAlerts, err = listAlerts(ctx, q, types.AlertFilter{Project: project, OpenOnly: true})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read project snapshot: %w", err)
	}
	return snap, nil
}

// ListProjects returns every project with sessions or metrics.
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project FROM discovery_sessions
		UNION SELECT project FROM metrics
		UNION SELECT project FROM activity_commits
		ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
