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

const insightColumns = `id, project, session_id, insight_type, subject_key, title, description,
	recommendations, evidence_count, families, supporting_patterns, confidence_score, risk_level,
	business_impact, technical_impact, implementation_complexity, priority_score, priority,
	validation_status, review_notes, expires_at, refresh_needed_at, superseded_by, created_at, updated_at`

func scanInsight(sc scanner) (*types.Insight, error) {
	var in types.Insight
	var recs, families, supporting string
	var supersededBy sql.NullString
	if err := sc.Scan(&in.ID, &in.Project, &in.SessionID, &in.Type, &in.SubjectKey, &in.Title, &in.Description,
		&recs, &in.EvidenceCount, &families, &supporting, &in.Confidence, &in.RiskLevel,
		&in.BusinessImpact, &in.TechnicalImpact, &in.Complexity, &in.PriorityScore, &in.Priority,
		&in.Status, &in.ReviewNotes, &in.ExpiresAt, &in.RefreshNeededAt, &supersededBy, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(recs, &in.Recommendations); err != nil {
		return nil, err
	}
	if err := fromJSON(families, &in.Families); err != nil {
		return nil, err
	}
	if err := fromJSON(supporting, &in.SupportingPatterns); err != nil {
		return nil, err
	}
	in.SupersededBy = supersededBy.String
	in.ExpiresAt = in.ExpiresAt.UTC()
	in.RefreshNeededAt = in.RefreshNeededAt.UTC()
	return &in, nil
}

func getInsight(ctx context.Context, q querier, id string) (*types.Insight, error) {
	in, err := scanInsight(q.QueryRowContext(ctx, `SELECT `+insightColumns+` FROM insights WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("insight %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}
	return in, nil
}

// UpsertInsight writes an insight keyed by (session, type, subject). A rerun
// for the same session rewrites the synthesized fields and keeps the review
// state. Returns true when a new row was created.
func (s *SQLiteStorage) UpsertInsight(ctx context.Context, in *types.Insight) (bool, error) {
	now := s.now()
	if in.Status == "" {
		in.Status = types.ValidationPending
	}
	if err := in.Validate(); err != nil {
		return false, err
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	created := false
	err := s.withImmediateTx(ctx, func(q querier) error {
		var existing types.Insight
		err := q.QueryRowContext(ctx, `SELECT id, validation_status, review_notes, created_at FROM insights
			WHERE session_id = ? AND insight_type = ? AND subject_key = ?`,
			in.SessionID, in.Type, in.SubjectKey).Scan(&existing.ID, &existing.Status, &existing.ReviewNotes, &existing.CreatedAt)
		switch {
		case err == sql.ErrNoRows:
			created = true
		case err != nil:
			return fmt.Errorf("failed to look up insight: %w", err)
		default:
			in.ID = existing.ID
			in.Status = existing.Status
			in.ReviewNotes = existing.ReviewNotes
			in.CreatedAt = existing.CreatedAt.UTC()
		}

		recs, err := toJSON(nonNilStrings(in.Recommendations))
		if err != nil {
			return err
		}
		families, err := toJSON(in.Families)
		if err != nil {
			return err
		}
		supporting, err := toJSON(in.SupportingPatterns)
		if err != nil {
			return err
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO insights (id, project, session_id, insight_type, subject_key, title, description,
				recommendations, evidence_count, families, supporting_patterns, confidence_score, risk_level,
				business_impact, technical_impact, implementation_complexity, priority_score, priority,
				validation_status, review_notes, expires_at, refresh_needed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?)
			ON CONFLICT (session_id, insight_type, subject_key) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				recommendations = excluded.recommendations,
				evidence_count = excluded.evidence_count,
				families = excluded.families,
				supporting_patterns = excluded.supporting_patterns,
				confidence_score = excluded.confidence_score,
				risk_level = excluded.risk_level,
				business_impact = excluded.business_impact,
				technical_impact = excluded.technical_impact,
				implementation_complexity = excluded.implementation_complexity,
				priority_score = excluded.priority_score,
				priority = excluded.priority,
				expires_at = excluded.expires_at,
				refresh_needed_at = excluded.refresh_needed_at,
				updated_at = excluded.updated_at
		`, in.ID, in.Project, in.SessionID, in.Type, in.SubjectKey, in.Title, in.Description,
			recs, in.EvidenceCount, families, supporting, in.Confidence, in.RiskLevel,
			in.BusinessImpact, in.TechnicalImpact, in.Complexity, in.PriorityScore, in.Priority,
			in.Status, in.ExpiresAt.UTC(), in.RefreshNeededAt.UTC(), in.CreatedAt.UTC(), in.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert insight: %w", err)
		}
		if !created {
			return nil
		}
		return insertEvent(ctx, q, events.NewEvent(events.EventTypeInsightCreated, in.Project, in.ID,
			events.SeverityInfo, fmt.Sprintf("%s insight: %s", in.Type, in.Title)))
	})
	return created, err
}

// SupersedeInsights marks insights of earlier sessions with the same type and
// subject as outdated, pointing them at replacement. Returns their ids.
func (s *SQLiteStorage) SupersedeInsights(ctx context.Context, replacement *types.Insight) ([]string, error) {
	now := s.now()
	var ids []string
	err := s.withImmediateTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, validation_status FROM insights
			WHERE project = ? AND insight_type = ? AND subject_key = ? AND session_id != ?
			  AND validation_status != 'outdated' AND superseded_by IS NULL`,
			replacement.Project, replacement.Type, replacement.SubjectKey, replacement.SessionID)
		if err != nil {
			return fmt.Errorf("failed to query superseded insights: %w", err)
		}
		prior := map[string]types.ValidationStatus{}
		for rows.Next() {
			var id string
			var st types.ValidationStatus
			if err := rows.Scan(&id, &st); err != nil {
				rows.Close()
				return err
			}
			prior[id] = st
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := q.ExecContext(ctx, `UPDATE insights SET validation_status = 'outdated', superseded_by = ?, updated_at = ? WHERE id = ?`,
				replacement.ID, now, id); err != nil {
				return fmt.Errorf("failed to supersede insight %s: %w", id, err)
			}
			ev, err := events.NewTransitionEvent(events.EventTypeInsightTransition, replacement.Project, id, events.SeverityInfo,
				"insight superseded by "+replacement.ID,
				events.TransitionData{From: string(prior[id]), To: string(types.ValidationOutdated), Reason: "superseded"})
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, q, ev); err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// GetInsight retrieves an insight by ID
func (s *SQLiteStorage) GetInsight(ctx context.Context, id string) (*types.Insight, error) {
	return getInsight(ctx, s.db, id)
}

// ListInsights returns insights matching the filter, highest priority first.
func (s *SQLiteStorage) ListInsights(ctx context.Context, filter types.InsightFilter) ([]*types.Insight, error) {
	return listInsights(ctx, s.db, filter)
}

func listInsights(ctx context.Context, q querier, filter types.InsightFilter) ([]*types.Insight, error) {
	var where []string
	var args []interface{}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, filter.RiskLevel)
	}
	if filter.Status != "" {
		where = append(where, "validation_status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "insight_type = ?")
		args = append(args, filter.Type)
	}
	query := `SELECT ` + insightColumns + ` FROM insights`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority ASC, priority_score DESC, created_at DESC" + limitClause(filter.Limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var out []*types.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// TransitionInsight moves an insight through the review workflow.
func (s *SQLiteStorage) TransitionInsight(ctx context.Context, id string, to types.ValidationStatus, notes string) (*types.Insight, error) {
	now := s.now()
	var result *types.Insight
	err := s.withImmediateTx(ctx, func(q querier) error {
		in, err := getInsight(ctx, q, id)
		if err != nil {
			return err
		}
		if err := types.CheckInsightTransition(in.Status, to); err != nil {
			return err
		}
		if notes == "" {
			notes = in.ReviewNotes
		}
		if _, err := q.ExecContext(ctx, `UPDATE insights SET validation_status = ?, review_notes = ?, updated_at = ? WHERE id = ?`,
			to, notes, now, id); err != nil {
			return fmt.Errorf("failed to update insight: %w", err)
		}
		ev, err := events.NewTransitionEvent(events.EventTypeInsightTransition, in.Project, id, events.SeverityInfo,
			fmt.Sprintf("insight %s -> %s", in.Status, to),
			events.TransitionData{From: string(in.Status), To: string(to), Reason: notes})
		if err != nil {
			return err
		}
		in.Status = to
		in.ReviewNotes = notes
		in.UpdatedAt = now
		result = in
		return insertEvent(ctx, q, ev)
	})
	return result, err
}

// ExpireInsights moves every insight whose expiry has passed to outdated.
// Returns the ids that changed.
func (s *SQLiteStorage) ExpireInsights(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.withImmediateTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, project, validation_status FROM insights
			WHERE expires_at <= ? AND validation_status != 'outdated'`, now.UTC())
		if err != nil {
			return fmt.Errorf("failed to query expired insights: %w", err)
		}
		type expired struct {
			id, project string
			status types.ValidationStatus
		}
		var found []expired
		for rows.Next() {
			var e expired
			if err := rows.Scan(&e.id, &e.project, &e.status); err != nil {
				rows.Close()
				return err
			}
			found = append(found, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, e := range found {
			if _, err := q.ExecContext(ctx, `UPDATE insights SET validation_status = 'outdated', updated_at = ? WHERE id = ?`,
				now.UTC(), e.id); err != nil {
				return fmt.Errorf("failed to expire insight %s: %w", e.id, err)
			}
			ev, err := events.NewTransitionEvent(events.EventTypeInsightExpired, e.project, e.id, events.SeverityInfo,
				"insight expired", events.TransitionData{From: string(e.status), To: string(types.ValidationOutdated), Reason: "expired"})
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, q, ev); err != nil {
				return err
			}
			ids = append(ids, e.id)
		}
		return nil
	})
	return ids, err
}

// InsightsNeedingRefresh returns live insights past their refresh time but
// not yet expired.
func (s *SQLiteStorage) InsightsNeedingRefresh(ctx context.Context, project string, now time.Time) ([]*types.Insight, error) {
	args := []interface{}{now.UTC(), now.UTC()}
	query := `SELECT ` + insightColumns + ` FROM insights
		WHERE refresh_needed_at <= ? AND expires_at > ?
		  AND validation_status IN ('pending', 'validated', 'implemented') AND superseded_by IS NULL`
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY refresh_needed_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights needing refresh: %w", err)
	}
	defer rows.Close()

	var out []*types.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
