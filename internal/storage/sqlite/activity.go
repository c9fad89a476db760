package sqlite

import (
	"context"
	"fmt"

	"github.com/steveyegge/devpulse/internal/types"
)

// ImportStats counts rows written by ImportActivity.
type ImportStats struct {
	Commits     int `json:"commits"`
	FileChanges int `json:"file_changes"`
	Sessions    int `json:"sessions"`
}

// ImportActivity copies activity records into the local store. Rows already
// present are replaced, so importing the same batch twice is harmless.
// Email addresses and session identities are stored pseudonymized.
func (s *SQLiteStorage) ImportActivity(ctx context.Context, batch *types.ActivityBatch) (*ImportStats, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	stats := &ImportStats{}
	err := s.withImmediateTx(ctx, func(q querier) error {
		for _, c := range batch.Commits {
			parents, err := toJSON(nonNilStrings(c.ParentSHAs))
			if err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, `
				INSERT OR REPLACE INTO activity_commits (project, sha, author, author_email, committer, committer_email,
					author_date, committer_date, branch, parent_shas, files_changed, insertions, deletions, message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, c.Project, c.SHA, c.Author, types.PseudonymizeIdentity(c.AuthorEmail), c.Committer, types.PseudonymizeIdentity(c.CommitterEmail),
				c.AuthorDate.UTC(), c.CommitterDate.UTC(), c.Branch, parents, c.FilesChanged, c.Insertions, c.Deletions, c.Message); err != nil {
				return fmt.Errorf("failed to import commit %s: %w", c.SHA, err)
			}
			stats.Commits++
		}
		for _, fc := range batch.FileChanges {
			if _, err := q.ExecContext(ctx, `
				INSERT OR REPLACE INTO activity_file_changes (project, commit_sha, file_path, change_type, lines_added, lines_removed)
				VALUES (?, ?, ?, ?, ?, ?)
			`, fc.Project, fc.Commit, fc.FilePath, fc.ChangeType, fc.LinesAdded, fc.LinesRemoved); err != nil {
				return fmt.Errorf("failed to import file change %s@%s: %w", fc.FilePath, fc.Commit, err)
			}
			stats.FileChanges++
		}
		for _, ds := range batch.Sessions {
			if _, err := q.ExecContext(ctx, `
				INSERT OR REPLACE INTO activity_developer_sessions (project, developer, started_at, ended_at)
				VALUES (?, ?, ?, ?)
			`, ds.Project, types.PseudonymizeIdentity(ds.Developer), ds.StartedAt.UTC(), ds.EndedAt.UTC()); err != nil {
				return fmt.Errorf("failed to import developer session: %w", err)
			}
			stats.Sessions++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListCommits implements activity.Source over imported activity.
func (s *SQLiteStorage) ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, sha, author, author_email, committer, committer_email, author_date, committer_date,
			branch, parent_shas, files_changed, insertions, deletions, message
		FROM activity_commits
		WHERE project = ? AND author_date >= ? AND author_date <= ?
		ORDER BY author_date, sha
		LIMIT ? OFFSET ?
	`, project, rng.Start.UTC(), rng.End.UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	defer rows.Close()

	var out []*types.Commit
	for rows.Next() {
		var c types.Commit
		var parents string
		if err := rows.Scan(&c.Project, &c.SHA, &c.Author, &c.AuthorEmail, &c.Committer, &c.CommitterEmail,
			&c.AuthorDate, &c.CommitterDate, &c.Branch, &parents, &c.FilesChanged, &c.Insertions, &c.Deletions, &c.Message); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		if err := fromJSON(parents, &c.ParentSHAs); err != nil {
			return nil, err
		}
		c.AuthorDate = c.AuthorDate.UTC()
		c.CommitterDate = c.CommitterDate.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ListFileChanges implements activity.Source over imported activity.
func (s *SQLiteStorage) ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error) {
	if len(shas) == 0 {
		return nil, nil
	}
	args := append([]interface{}{project}, stringArgs(shas)...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, commit_sha, file_path, change_type, lines_added, lines_removed
		FROM activity_file_changes
		WHERE project = ? AND commit_sha IN (`+placeholders(len(shas))+`)
		ORDER BY commit_sha, file_path
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file changes: %w", err)
	}
	defer rows.Close()

	var out []*types.FileChange
	for rows.Next() {
		var fc types.FileChange
		if err := rows.Scan(&fc.Project, &fc.Commit, &fc.FilePath, &fc.ChangeType, &fc.LinesAdded, &fc.LinesRemoved); err != nil {
			return nil, fmt.Errorf("failed to scan file change: %w", err)
		}
		out = append(out, &fc)
	}
	return out, rows.Err()
}

// ListDeveloperSessions implements activity.Source over imported activity.
func (s *SQLiteStorage) ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, developer, started_at, ended_at
		FROM activity_developer_sessions
		WHERE project = ? AND started_at <= ? AND ended_at >= ?
		ORDER BY started_at
	`, project, rng.End.UTC(), rng.Start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list developer sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.DeveloperSession
	for rows.Next() {
		var ds types.DeveloperSession
		if err := rows.Scan(&ds.Project, &ds.Developer, &ds.StartedAt, &ds.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan developer session: %w", err)
		}
		ds.StartedAt = ds.StartedAt.UTC()
		ds.EndedAt = ds.EndedAt.UTC()
		out = append(out, &ds)
	}
	return out, rows.Err()
}
