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

const sessionColumns = `id, project, range_start, range_end, algorithm_version, status,
	phase_timings, miner_durations, total_duration_ms, commits_analyzed, patterns_discovered,
	error_message, superseded_by, supersedes, started_at, completed_at, archived_at`

func scanSession(sc scanner) (*types.DiscoverySession, error) {
	var sess types.DiscoverySession
	var phases, miners, supersedes string
	var totalMs int64
	var supersededBy sql.NullString
	var completedAt, archivedAt sql.NullTime

	if err := sc.Scan(
		&sess.ID, &sess.Project, &sess.Range.Start, &sess.Range.End, &sess.AlgorithmVersion, &sess.Status,
		&phases, &miners, &totalMs, &sess.CommitsAnalyzed, &sess.PatternsDiscovered,
		&sess.ErrorMessage, &supersededBy, &supersedes, &sess.StartedAt, &completedAt, &archivedAt,
	); err != nil {
		return nil, err
	}

	var phaseMs, minerMs map[string]int64
	if err := fromJSON(phases, &phaseMs); err != nil {
		return nil, err
	}
	if err := fromJSON(miners, &minerMs); err != nil {
		return nil, err
	}
	if err := fromJSON(supersedes, &sess.Supersedes); err != nil {
		return nil, err
	}
	sess.PhaseTimings = durationsFromMillis(phaseMs)
	sess.MinerDurations = durationsFromMillis(minerMs)
	sess.TotalDuration = time.Duration(totalMs) * time.Millisecond
	sess.SupersededBy = supersededBy.String
	sess.Range.Start = sess.Range.Start.UTC()
	sess.Range.End = sess.Range.End.UTC()
	sess.StartedAt = sess.StartedAt.UTC()
	sess.CompletedAt = timePtr(completedAt)
	sess.ArchivedAt = timePtr(archivedAt)
	return &sess, nil
}

func getSession(ctx context.Context, q querier, id string) (*types.DiscoverySession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// CreateSession inserts a new running session. A project holds at most one
// running or refreshing session; a second concurrent start fails with
// types.ErrSessionRunning.
func (s *SQLiteStorage) CreateSession(ctx context.Context, sess *types.DiscoverySession) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = types.SessionRunning
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	sess.Range.Start = sess.Range.Start.UTC()
	sess.Range.End = sess.Range.End.UTC()
	if err := sess.Validate(); err != nil {
		return err
	}

	return s.withImmediateTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO discovery_sessions (id, project, range_start, range_end, algorithm_version, status,
				phase_timings, miner_durations, supersedes, started_at)
			VALUES (?, ?, ?, ?, ?, ?, '{}', '{}', '[]', ?)
		`, sess.ID, sess.Project, sess.Range.Start, sess.Range.End, sess.AlgorithmVersion, sess.Status, sess.StartedAt.UTC())
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("project %s: %w", sess.Project, types.ErrSessionRunning)
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return insertEvent(ctx, q, events.NewEvent(events.EventTypeSessionStarted, sess.Project, sess.ID,
			events.SeverityInfo, fmt.Sprintf("discovery started for %s (%s)", sess.Project, sess.AlgorithmVersion)))
	})
}

// GetSession retrieves a session by ID
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*types.DiscoverySession, error) {
	return getSession(ctx, s.db, id)
}

// FindSession returns the newest non-failed session for exactly this range
// and algorithm version, or nil.
func (s *SQLiteStorage) FindSession(ctx context.Context, project string, rng types.CommitRange, version string) (*types.DiscoverySession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions
		WHERE project = ? AND range_start = ? AND range_end = ? AND algorithm_version = ?
		  AND status IN ('running', 'completed', 'refreshing') AND archived_at IS NULL
		ORDER BY started_at DESC LIMIT 1`,
		project, rng.Start.UTC(), rng.End.UTC(), version)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return sess, nil
}

// ActiveSession returns the project's running or refreshing session, or nil.
func (s *SQLiteStorage) ActiveSession(ctx context.Context, project string) (*types.DiscoverySession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions
		WHERE project = ? AND status IN ('running', 'refreshing') LIMIT 1`, project)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sess, nil
}

// LatestCompletedSession returns the most recently completed, non-superseded
// session for the project, or nil.
func (s *SQLiteStorage) LatestCompletedSession(ctx context.Context, project string) (*types.DiscoverySession, error) {
	return latestCompletedSession(ctx, s.db, project)
}

func latestCompletedSession(ctx context.Context, q querier, project string) (*types.DiscoverySession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions
		WHERE project = ? AND status = 'completed' AND archived_at IS NULL
		ORDER BY completed_at DESC, range_end DESC LIMIT 1`, project)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return sess, nil
}

// PreviousSession returns the most recent completed or outdated session
// other than excludeID, or nil. Used for cross-session comparisons.
func (s *SQLiteStorage) PreviousSession(ctx context.Context, project, excludeID string) (*types.DiscoverySession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM discovery_sessions
		WHERE project = ? AND id != ? AND status IN ('completed', 'outdated') AND completed_at IS NOT NULL
		ORDER BY completed_at DESC LIMIT 1`, project, excludeID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.DiscoverySession, error) {
	var where []string
	var args []interface{}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	query := `SELECT ` + sessionColumns + ` FROM discovery_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.DiscoverySession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CompleteSession marks sess completed with its timings and counts. Earlier
// completed sessions whose range lies within sess's range become outdated
// and point at sess; co-occurrence pairs recomputed by sess are deactivated
// in every other session. Returns the ids of the superseded sessions.
func (s *SQLiteStorage) CompleteSession(ctx context.Context, sess *types.DiscoverySession) ([]string, error) {
	if err := types.CheckPhaseTimings(sess.PhaseTimings, sess.TotalDuration); err != nil {
		return nil, err
	}
	if sess.PatternsDiscovered < 0 {
		return nil, fmt.Errorf("%w: patterns_discovered=%d", types.ErrBoundViolation, sess.PatternsDiscovered)
	}

	var superseded []string
	now := s.now()
	err := s.withImmediateTx(ctx, func(q querier) error {
		current, err := getSession(ctx, q, sess.ID)
		if err != nil {
			return err
		}
		if err := types.CheckSessionTransition(current.Status, types.SessionCompleted); err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx, `SELECT id, range_start, range_end FROM discovery_sessions
			WHERE project = ? AND id != ? AND status = 'completed'`, current.Project, current.ID)
		if err != nil {
			return fmt.Errorf("failed to query superseded sessions: %w", err)
		}
		for rows.Next() {
			var id string
			var rng types.CommitRange
			if err := rows.Scan(&id, &rng.Start, &rng.End); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan session range: %w", err)
			}
			if rng.IsSubsetOf(current.Range) {
				superseded = append(superseded, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		supersedes := mergeIDs(current.Supersedes, superseded)
		_, err = q.ExecContext(ctx, `
			UPDATE discovery_sessions SET status = 'completed', phase_timings = ?, miner_durations = ?,
				total_duration_ms = ?, commits_analyzed = ?, patterns_discovered = ?, error_message = '',
				supersedes = ?, completed_at = ?
			WHERE id = ?
		`, mustJSON(durationMap(sess.PhaseTimings)), mustJSON(durationMap(sess.MinerDurations)),
			sess.TotalDuration.Milliseconds(), sess.CommitsAnalyzed, sess.PatternsDiscovered,
			mustJSON(supersedes), now, current.ID)
		if err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}

		for _, id := range superseded {
			if _, err := q.ExecContext(ctx, `UPDATE discovery_sessions SET status = 'outdated', superseded_by = ? WHERE id = ?`,
				current.ID, id); err != nil {
				return fmt.Errorf("failed to mark session %s outdated: %w", id, err)
			}
			ev, err := events.NewTransitionEvent(events.EventTypeSessionOutdated, current.Project, id, events.SeverityInfo,
				fmt.Sprintf("session superseded by %s", current.ID),
				events.TransitionData{From: string(types.SessionCompleted), To: string(types.SessionOutdated), Reason: current.ID})
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, q, ev); err != nil {
				return err
			}
		}

		if _, err := q.ExecContext(ctx, `
			UPDATE cooccurrence_patterns SET is_active = 0, updated_at = ?
			WHERE project = ? AND session_id != ? AND is_active = 1
			  AND pair_hash IN (SELECT pair_hash FROM cooccurrence_patterns WHERE session_id = ?)
		`, now, current.Project, current.ID, current.ID); err != nil {
			return fmt.Errorf("failed to deactivate superseded pairs: %w", err)
		}

		ev, err := events.NewTransitionEvent(events.EventTypeSessionCompleted, current.Project, current.ID, events.SeverityInfo,
			fmt.Sprintf("discovery completed: %d patterns from %d commits", sess.PatternsDiscovered, sess.CommitsAnalyzed),
			events.TransitionData{From: string(current.Status), To: string(types.SessionCompleted)})
		if err != nil {
			return err
		}
		if err := insertEvent(ctx, q, ev); err != nil {
			return err
		}

		sess.Status = types.SessionCompleted
		sess.CompletedAt = &now
		sess.Supersedes = supersedes
		sess.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// FailSession marks sess failed, keeping whatever timings were collected.
func (s *SQLiteStorage) FailSession(ctx context.Context, sess *types.DiscoverySession, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := s.now()
	return s.withImmediateTx(ctx, func(q querier) error {
		current, err := getSession(ctx, q, sess.ID)
		if err != nil {
			return err
		}
		if err := types.CheckSessionTransition(current.Status, types.SessionFailed); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			UPDATE discovery_sessions SET status = 'failed', phase_timings = ?, miner_durations = ?,
				total_duration_ms = ?, commits_analyzed = ?, error_message = ?, completed_at = ?
			WHERE id = ?
		`, mustJSON(durationMap(sess.PhaseTimings)), mustJSON(durationMap(sess.MinerDurations)),
			sess.TotalDuration.Milliseconds(), sess.CommitsAnalyzed, msg, now, sess.ID)
		if err != nil {
			return fmt.Errorf("failed to mark session failed: %w", err)
		}
		ev, err := events.NewTransitionEvent(events.EventTypeSessionFailed, current.Project, current.ID, events.SeverityError,
			"discovery failed: "+msg,
			events.TransitionData{From: string(current.Status), To: string(types.SessionFailed), Reason: msg})
		if err != nil {
			return err
		}
		sess.Status = types.SessionFailed
		sess.ErrorMessage = msg
		sess.CompletedAt = &now
		return insertEvent(ctx, q, ev)
	})
}

// BeginRefresh moves a completed session to refreshing. The refresh takes
// the project's single-writer slot like a new run does.
func (s *SQLiteStorage) BeginRefresh(ctx context.Context, id string) (*types.DiscoverySession, error) {
	var sess *types.DiscoverySession
	err := s.withImmediateTx(ctx, func(q querier) error {
		current, err := getSession(ctx, q, id)
		if err != nil {
			return err
		}
		if err := types.CheckSessionTransition(current.Status, types.SessionRefreshing); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `UPDATE discovery_sessions SET status = 'refreshing', error_message = '' WHERE id = ?`, id); err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("project %s: %w", current.Project, types.ErrSessionRunning)
			}
			return fmt.Errorf("failed to begin refresh: %w", err)
		}
		ev, err := events.NewTransitionEvent(events.EventTypeSessionRefreshing, current.Project, id, events.SeverityInfo,
			"session refresh started",
			events.TransitionData{From: string(current.Status), To: string(types.SessionRefreshing)})
		if err != nil {
			return err
		}
		current.Status = types.SessionRefreshing
		sess = current
		return insertEvent(ctx, q, ev)
	})
	return sess, err
}

// ArchiveSession stamps a terminal session as archived. Archived sessions
// are hidden from latest-session lookups but keep their rows.
func (s *SQLiteStorage) ArchiveSession(ctx context.Context, id string) error {
	now := s.now()
	return s.withImmediateTx(ctx, func(q querier) error {
		current, err := getSession(ctx, q, id)
		if err != nil {
			return err
		}
		if current.Status.IsActive() {
			return fmt.Errorf("%w: cannot archive %s session %s", types.ErrInvalidTransition, current.Status, id)
		}
		if current.ArchivedAt != nil {
			return nil
		}
		if _, err := q.ExecContext(ctx, `UPDATE discovery_sessions SET archived_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("failed to archive session: %w", err)
		}
		return insertEvent(ctx, q, events.NewEvent(events.EventTypeSessionArchived, current.Project, id,
			events.SeverityInfo, "session archived"))
	})
}

// FailStaleSessions marks running or refreshing sessions started before
// cutoff as failed. A crashed process leaves such sessions behind and they
// would otherwise block the project forever.
func (s *SQLiteStorage) FailStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	var failed []string
	now := s.now()
	err := s.withImmediateTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, project, status FROM discovery_sessions
			WHERE status IN ('running', 'refreshing') AND started_at < ?`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("failed to query stale sessions: %w", err)
		}
		type stale struct {
			id, project string
			status types.SessionStatus
		}
		var found []stale
		for rows.Next() {
			var st stale
			if err := rows.Scan(&st.id, &st.project, &st.status); err != nil {
				rows.Close()
				return err
			}
			found = append(found, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, st := range found {
			if _, err := q.ExecContext(ctx, `UPDATE discovery_sessions SET status = 'failed',
				error_message = 'abandoned: no progress before cutoff', completed_at = ? WHERE id = ?`, now, st.id); err != nil {
				return fmt.Errorf("failed to fail stale session %s: %w", st.id, err)
			}
			ev, err := events.NewTransitionEvent(events.EventTypeSessionFailed, st.project, st.id, events.SeverityWarning,
				"stale session failed", events.TransitionData{From: string(st.status), To: string(types.SessionFailed), Reason: "stale"})
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, q, ev); err != nil {
				return err
			}
			failed = append(failed, st.id)
		}
		return nil
	})
	return failed, err
}

func mergeIDs(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, id := range append(append([]string{}, existing...), added...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
