package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/devpulse/internal/types"
)

// UpsertCooccurrencePatterns writes pairs keyed by (session, pair hash).
// Re-running a miner for the same session overwrites metrics in place and
// keeps the original id and created_at.
func (s *SQLiteStorage) UpsertCooccurrencePatterns(ctx context.Context, patterns []*types.CooccurrencePattern) error {
	now := s.now()
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, p := range patterns {
			if p.ID == "" {
				p.ID = types.PatternID(types.FamilyCooccurrence, p.SessionID, p.PairHash)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			p.UpdatedAt = now
			commits, err := toJSON(p.ContributingCommit)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx, `
				INSERT INTO cooccurrence_patterns (id, project, session_id, path1, path2, pair_hash,
					cooccurrence_count, support, confidence_1_to_2, confidence_2_to_1, lift, pattern_strength,
					is_bidirectional, contributing_commits, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
				ON CONFLICT (session_id, pair_hash) DO UPDATE SET
					cooccurrence_count = excluded.cooccurrence_count,
					support = excluded.support,
					confidence_1_to_2 = excluded.confidence_1_to_2,
					confidence_2_to_1 = excluded.confidence_2_to_1,
					lift = excluded.lift,
					pattern_strength = excluded.pattern_strength,
					is_bidirectional = excluded.is_bidirectional,
					contributing_commits = excluded.contributing_commits,
					is_active = 1,
					updated_at = excluded.updated_at
			`, p.ID, p.Project, p.SessionID, p.Path1, p.Path2, p.PairHash,
				p.CooccurrenceCount, p.Support, p.Confidence1To2, p.Confidence2To1, p.Lift, p.Strength,
				boolInt(p.Bidirectional), commits, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
			if err != nil {
				return wrapPatternWriteError("co-occurrence", p.Path1+"|"+p.Path2, err)
			}
			p.IsActive = true
		}
		return nil
	})
}

// UpsertTemporalPatterns writes one row per (session, temporal type).
func (s *SQLiteStorage) UpsertTemporalPatterns(ctx context.Context, patterns []*types.TemporalPattern) error {
	now := s.now()
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, p := range patterns {
			if p.ID == "" {
				p.ID = types.PatternID(types.FamilyTemporal, p.SessionID, string(p.PatternType))
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO temporal_patterns (id, project, session_id, pattern_type, observed, expected,
					total_commits, chi_square, degrees_of_freedom, p_value, strength_score, pattern_strength,
					coefficient_of_variation, skewness, kurtosis, peak_buckets, stability, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (session_id, pattern_type) DO UPDATE SET
					observed = excluded.observed,
					expected = excluded.expected,
					total_commits = excluded.total_commits,
					chi_square = excluded.chi_square,
					degrees_of_freedom = excluded.degrees_of_freedom,
					p_value = excluded.p_value,
					strength_score = excluded.strength_score,
					pattern_strength = excluded.pattern_strength,
					coefficient_of_variation = excluded.coefficient_of_variation,
					skewness = excluded.skewness,
					kurtosis = excluded.kurtosis,
					peak_buckets = excluded.peak_buckets,
					stability = excluded.stability
			`, p.ID, p.Project, p.SessionID, p.PatternType, mustJSON(p.Observed), mustJSON(p.Expected),
				p.TotalCommits, p.ChiSquare, p.DegreesOfFreedom, p.PValue, p.StrengthScore, p.Strength,
				p.CoefficientOfVar, p.Skewness, p.Kurtosis, mustJSON(nonNilInts(p.PeakBuckets)), p.Stability, p.CreatedAt.UTC())
			if err != nil {
				return wrapPatternWriteError("temporal", string(p.PatternType), err)
			}
		}
		return nil
	})
}

// UpsertDeveloperPatterns writes one row per (session, developer hash).
func (s *SQLiteStorage) UpsertDeveloperPatterns(ctx context.Context, patterns []*types.DeveloperPattern) error {
	now := s.now()
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, p := range patterns {
			if p.ID == "" {
				p.ID = types.PatternID(types.FamilyDeveloper, p.SessionID, p.DeveloperHash)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO developer_patterns (id, project, session_id, developer_hash, display_name,
					commit_count, lines_added, lines_removed, avg_commit_size, median_commit_size, stddev_commit_size,
					unique_files, exclusive_files, specialty_files, collaborators,
					specialization_score, knowledge_breadth, change_velocity, consistency, collaboration_score,
					temporal_overlap, knowledge_silo_risk, preferred_hours, work_schedule,
					first_commit_at, last_commit_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (session_id, developer_hash) DO UPDATE SET
					display_name = excluded.display_name,
					commit_count = excluded.commit_count,
					lines_added = excluded.lines_added,
					lines_removed = excluded.lines_removed,
					avg_commit_size = excluded.avg_commit_size,
					median_commit_size = excluded.median_commit_size,
					stddev_commit_size = excluded.stddev_commit_size,
					unique_files = excluded.unique_files,
					exclusive_files = excluded.exclusive_files,
					specialty_files = excluded.specialty_files,
					collaborators = excluded.collaborators,
					specialization_score = excluded.specialization_score,
					knowledge_breadth = excluded.knowledge_breadth,
					change_velocity = excluded.change_velocity,
					consistency = excluded.consistency,
					collaboration_score = excluded.collaboration_score,
					temporal_overlap = excluded.temporal_overlap,
					knowledge_silo_risk = excluded.knowledge_silo_risk,
					preferred_hours = excluded.preferred_hours,
					work_schedule = excluded.work_schedule,
					first_commit_at = excluded.first_commit_at,
					last_commit_at = excluded.last_commit_at
			`, p.ID, p.Project, p.SessionID, p.DeveloperHash, p.DisplayName,
				p.CommitCount, p.LinesAdded, p.LinesRemoved, p.AvgCommitSize, p.MedianCommitSize, p.StdDevCommitSize,
				p.UniqueFiles, p.ExclusiveFiles, mustJSON(nonNilStrings(p.SpecialtyFiles)), mustJSON(nonNilStrings(p.Collaborators)),
				p.SpecializationScore, p.KnowledgeBreadth, p.ChangeVelocity, p.Consistency, p.CollaborationScore,
				p.TemporalOverlap, p.KnowledgeSiloRisk, mustJSON(nonNilInts(p.PreferredHours)), p.WorkSchedule,
				p.FirstCommitAt.UTC(), p.LastCommitAt.UTC(), p.CreatedAt.UTC())
			if err != nil {
				return wrapPatternWriteError("developer", p.DeveloperHash, err)
			}
		}
		return nil
	})
}

// UpsertChangeMagnitudePatterns writes one row per (session, file).
func (s *SQLiteStorage) UpsertChangeMagnitudePatterns(ctx context.Context, patterns []*types.ChangeMagnitudePattern) error {
	now := s.now()
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, p := range patterns {
			if p.ID == "" {
				p.ID = types.PatternID(types.FamilyChangeMagnitude, p.SessionID, p.FilePath)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO change_magnitude_patterns (id, project, session_id, file_path, change_count,
					lines_added, lines_removed, avg_lines_changed, median_lines_changed, stddev_lines_changed,
					change_frequency, volatility_score, stability_score, predictability_score, anomaly_score,
					hotspot_score, technical_debt_indicator, contributor_count, contributor_diversity,
					trend_direction, trend_slope, risk_level, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (session_id, file_path) DO UPDATE SET
					change_count = excluded.change_count,
					lines_added = excluded.lines_added,
					lines_removed = excluded.lines_removed,
					avg_lines_changed = excluded.avg_lines_changed,
					median_lines_changed = excluded.median_lines_changed,
					stddev_lines_changed = excluded.stddev_lines_changed,
					change_frequency = excluded.change_frequency,
					volatility_score = excluded.volatility_score,
					stability_score = excluded.stability_score,
					predictability_score = excluded.predictability_score,
					anomaly_score = excluded.anomaly_score,
					hotspot_score = excluded.hotspot_score,
					technical_debt_indicator = excluded.technical_debt_indicator,
					contributor_count = excluded.contributor_count,
					contributor_diversity = excluded.contributor_diversity,
					trend_direction = excluded.trend_direction,
					trend_slope = excluded.trend_slope,
					risk_level = excluded.risk_level
			`, p.ID, p.Project, p.SessionID, p.FilePath, p.ChangeCount,
				p.LinesAdded, p.LinesRemoved, p.AvgLinesChanged, p.MedianLinesChanged, p.StdDevLinesChanged,
				p.ChangeFrequency, p.VolatilityScore, p.StabilityScore, p.PredictabilityScore, p.AnomalyScore,
				p.HotspotScore, p.TechnicalDebt, p.ContributorCount, p.ContributorDiversity,
				p.Trend, p.TrendSlope, p.RiskLevel, p.CreatedAt.UTC())
			if err != nil {
				return wrapPatternWriteError("change magnitude", p.FilePath, err)
			}
		}
		return nil
	})
}

// ClearSessionPatterns removes every pattern row written by a session so a
// refresh can recompute from scratch.
func (s *SQLiteStorage) ClearSessionPatterns(ctx context.Context, sessionID string) error {
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, table := range []string{
			"cooccurrence_patterns", "temporal_patterns", "developer_patterns",
			"change_magnitude_patterns", "file_change_history",
		} {
			if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func wrapPatternWriteError(family, key string, err error) error {
	if isCheckConstraintError(err) {
		return fmt.Errorf("%w: %s pattern %s: %v", types.ErrBoundViolation, family, key, err)
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s pattern %s: %v", types.ErrDuplicateKey, family, key, err)
	}
	return fmt.Errorf("failed to write %s pattern %s: %w", family, key, err)
}

// patternScope resolves the filter's session. An empty session id means the
// latest completed session for the project; ok is false when none exists.
func patternScope(ctx context.Context, q querier, filter types.PatternFilter) (sessionID string, ok bool, err error) {
	if filter.SessionID != "" {
		return filter.SessionID, true, nil
	}
	if filter.Project == "" {
		return "", false, fmt.Errorf("%w: project or session is required", types.ErrInvalidInput)
	}
	sess, err := latestCompletedSession(ctx, q, filter.Project)
	if err != nil || sess == nil {
		return "", false, err
	}
	return sess.ID, true, nil
}

// strengthsAtLeast lists the strength values ranked at or above min.
func strengthsAtLeast(min types.PatternStrength) []string {
	var out []string
	for _, st := range []types.PatternStrength{types.StrengthWeak, types.StrengthModerate, types.StrengthStrong, types.StrengthVeryStrong} {
		if st.Rank() >= min.Rank() {
			out = append(out, string(st))
		}
	}
	return out
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// ListCooccurrencePatterns returns pairs ordered by lift, strongest first.
func (s *SQLiteStorage) ListCooccurrencePatterns(ctx context.Context, filter types.PatternFilter) ([]*types.CooccurrencePattern, error) {
	return listCooccurrence(ctx, s.db, filter)
}

func listCooccurrence(ctx context.Context, q querier, filter types.PatternFilter) ([]*types.CooccurrencePattern, error) {
	sessionID, ok, err := patternScope(ctx, q, filter)
	if err != nil || !ok {
		return nil, err
	}
	where := []string{"session_id = ?"}
	args := []interface{}{sessionID}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if filter.MinStrength != "" {
		allowed := strengthsAtLeast(filter.MinStrength)
		where = append(where, "pattern_strength IN ("+placeholders(len(allowed))+")")
		args = append(args, stringArgs(allowed)...)
	}
	if filter.FilePath != "" {
		where = append(where, "(path1 = ? OR path2 = ?)")
		args = append(args, filter.FilePath, filter.FilePath)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, project, session_id, path1, path2, pair_hash, cooccurrence_count, support,
			confidence_1_to_2, confidence_2_to_1, lift, pattern_strength, is_bidirectional,
			contributing_commits, is_active, created_at, updated_at
		FROM cooccurrence_patterns WHERE `+strings.Join(where, " AND ")+`
		ORDER BY lift DESC, cooccurrence_count DESC, path1, path2`+limitClause(filter.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list co-occurrence patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.CooccurrencePattern
	for rows.Next() {
		var p types.CooccurrencePattern
		var commits string
		var bidir, active int
		if err := rows.Scan(&p.ID, &p.Project, &p.SessionID, &p.Path1, &p.Path2, &p.PairHash,
			&p.CooccurrenceCount, &p.Support, &p.Confidence1To2, &p.Confidence2To1, &p.Lift, &p.Strength,
			&bidir, &commits, &active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan co-occurrence pattern: %w", err)
		}
		if err := fromJSON(commits, &p.ContributingCommit); err != nil {
			return nil, err
		}
		p.Bidirectional = bidir == 1
		p.IsActive = active == 1
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListTemporalPatterns returns the temporal patterns of a session.
func (s *SQLiteStorage) ListTemporalPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.TemporalPattern, error) {
	return listTemporal(ctx, s.db, filter)
}

func listTemporal(ctx context.Context, q querier, filter types.PatternFilter) ([]*types.TemporalPattern, error) {
	sessionID, ok, err := patternScope(ctx, q, filter)
	if err != nil || !ok {
		return nil, err
	}
	where := []string{"session_id = ?"}
	args := []interface{}{sessionID}
	if filter.MinStrength != "" {
		allowed := strengthsAtLeast(filter.MinStrength)
		where = append(where, "pattern_strength IN ("+placeholders(len(allowed))+")")
		args = append(args, stringArgs(allowed)...)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, project, session_id, pattern_type, observed, expected, total_commits, chi_square,
			degrees_of_freedom, p_value, strength_score, pattern_strength, coefficient_of_variation,
			skewness, kurtosis, peak_buckets, stability, created_at
		FROM temporal_patterns WHERE `+strings.Join(where, " AND ")+`
		ORDER BY strength_score DESC, pattern_type`+limitClause(filter.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list temporal patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.TemporalPattern
	for rows.Next() {
		var p types.TemporalPattern
		var observed, expected, peaks string
		if err := rows.Scan(&p.ID, &p.Project, &p.SessionID, &p.PatternType, &observed, &expected,
			&p.TotalCommits, &p.ChiSquare, &p.DegreesOfFreedom, &p.PValue, &p.StrengthScore, &p.Strength,
			&p.CoefficientOfVar, &p.Skewness, &p.Kurtosis, &peaks, &p.Stability, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan temporal pattern: %w", err)
		}
		if err := fromJSON(observed, &p.Observed); err != nil {
			return nil, err
		}
		if err := fromJSON(expected, &p.Expected); err != nil {
			return nil, err
		}
		if err := fromJSON(peaks, &p.PeakBuckets); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListDeveloperPatterns returns developer profiles ordered by silo risk.
func (s *SQLiteStorage) ListDeveloperPatterns(ctx context.Context, filter types.PatternFilter) ([]*types.DeveloperPattern, error) {
	return listDevelopers(ctx, s.db, filter)
}

func listDevelopers(ctx context.Context, q querier, filter types.PatternFilter) ([]*types.DeveloperPattern, error) {
	sessionID, ok, err := patternScope(ctx, q, filter)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, project, session_id, developer_hash, display_name, commit_count, lines_added, lines_removed,
			avg_commit_size, median_commit_size, stddev_commit_size, unique_files, exclusive_files,
			specialty_files, collaborators, specialization_score, knowledge_breadth, change_velocity,
			consistency, collaboration_score, temporal_overlap, knowledge_silo_risk, preferred_hours,
			work_schedule, first_commit_at, last_commit_at, created_at
		FROM developer_patterns WHERE session_id = ?
		ORDER BY knowledge_silo_risk DESC, commit_count DESC, developer_hash`+limitClause(filter.Limit), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list developer patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.DeveloperPattern
	for rows.Next() {
		var p types.DeveloperPattern
		var specialty, collaborators, hours string
		if err := rows.Scan(&p.ID, &p.Project, &p.SessionID, &p.DeveloperHash, &p.DisplayName,
			&p.CommitCount, &p.LinesAdded, &p.LinesRemoved, &p.AvgCommitSize, &p.MedianCommitSize, &p.StdDevCommitSize,
			&p.UniqueFiles, &p.ExclusiveFiles, &specialty, &collaborators, &p.SpecializationScore,
			&p.KnowledgeBreadth, &p.ChangeVelocity, &p.Consistency, &p.CollaborationScore, &p.TemporalOverlap,
			&p.KnowledgeSiloRisk, &hours, &p.WorkSchedule, &p.FirstCommitAt, &p.LastCommitAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan developer pattern: %w", err)
		}
		if err := fromJSON(specialty, &p.SpecialtyFiles); err != nil {
			return nil, err
		}
		if err := fromJSON(collaborators, &p.Collaborators); err != nil {
			return nil, err
		}
		if err := fromJSON(hours, &p.PreferredHours); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListChangeMagnitudePatterns returns file profiles ordered by hotspot score.
func (s *SQLiteStorage) ListChangeMagnitudePatterns(ctx context.Context, filter types.PatternFilter) ([]*types.ChangeMagnitudePattern, error) {
	return listMagnitude(ctx, s.db, filter)
}

func listMagnitude(ctx context.Context, q querier, filter types.PatternFilter) ([]*types.ChangeMagnitudePattern, error) {
	sessionID, ok, err := patternScope(ctx, q, filter)
	if err != nil || !ok {
		return nil, err
	}
	where := []string{"session_id = ?"}
	args := []interface{}{sessionID}
	if filter.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, filter.RiskLevel)
	}
	if filter.FilePath != "" {
		where = append(where, "file_path = ?")
		args = append(args, filter.FilePath)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, project, session_id, file_path, change_count, lines_added, lines_removed,
			avg_lines_changed, median_lines_changed, stddev_lines_changed, change_frequency,
			volatility_score, stability_score, predictability_score, anomaly_score, hotspot_score,
			technical_debt_indicator, contributor_count, contributor_diversity, trend_direction,
			trend_slope, risk_level, created_at
		FROM change_magnitude_patterns WHERE `+strings.Join(where, " AND ")+`
		ORDER BY hotspot_score DESC, file_path`+limitClause(filter.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change magnitude patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.ChangeMagnitudePattern
	for rows.Next() {
		var p types.ChangeMagnitudePattern
		if err := rows.Scan(&p.ID, &p.Project, &p.SessionID, &p.FilePath, &p.ChangeCount,
			&p.LinesAdded, &p.LinesRemoved, &p.AvgLinesChanged, &p.MedianLinesChanged, &p.StdDevLinesChanged,
			&p.ChangeFrequency, &p.VolatilityScore, &p.StabilityScore, &p.PredictabilityScore, &p.AnomalyScore,
			&p.HotspotScore, &p.TechnicalDebt, &p.ContributorCount, &p.ContributorDiversity, &p.Trend,
			&p.TrendSlope, &p.RiskLevel, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change magnitude pattern: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CountSessionPatterns returns the number of rows each family wrote for a session.
func (s *SQLiteStorage) CountSessionPatterns(ctx context.Context, sessionID string) (map[types.PatternFamily]int, error) {
	tables := map[types.PatternFamily]string{
		types.FamilyCooccurrence:    "cooccurrence_patterns",
		types.FamilyTemporal:        "temporal_patterns",
		types.FamilyDeveloper:       "developer_patterns",
		types.FamilyChangeMagnitude: "change_magnitude_patterns",
	}
	out := make(map[types.PatternFamily]int, len(tables))
	for family, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		out[family] = n
	}
	return out, nil
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nonNilInts(xs []int) []int {
	if xs == nil {
		return []int{}
	}
	return xs
}
