package sqlite

import (
	"context"
	"fmt"

	"github.com/steveyegge/devpulse/internal/types"
)

// historyChunk bounds the number of paths bound into one IN clause.
const historyChunk = 400

// AppendFileHistory records each file's change frequency for a session.
// Writing the same (file, session) twice overwrites the earlier point.
func (s *SQLiteStorage) AppendFileHistory(ctx context.Context, points []types.FileHistoryPoint) error {
	return s.withImmediateTx(ctx, func(q querier) error {
		for _, p := range points {
			if err := types.CheckNonNegative("change_frequency", p.ChangeFrequency); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO file_change_history (project, file_path, session_id, period_end, change_frequency)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (project, file_path, session_id) DO UPDATE SET
					period_end = excluded.period_end,
					change_frequency = excluded.change_frequency
			`, p.Project, p.FilePath, p.SessionID, p.PeriodEnd.UTC(), p.ChangeFrequency); err != nil {
				return fmt.Errorf("failed to append history for %s: %w", p.FilePath, err)
			}
		}
		return nil
	})
}

// FileHistories returns the stored history of each path, oldest first.
// Points from the session being computed are excluded so a refresh does
// not see its own previous output.
func (s *SQLiteStorage) FileHistories(ctx context.Context, project string, paths []string, excludeSession string) (map[string][]types.FileHistoryPoint, error) {
	out := make(map[string][]types.FileHistoryPoint, len(paths))
	for start := 0; start < len(paths); start += historyChunk {
		end := start + historyChunk
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]

		args := []interface{}{project, excludeSession}
		args = append(args, stringArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx, `
			SELECT h.file_path, h.session_id, h.period_end, h.change_frequency
			FROM file_change_history h
			JOIN discovery_sessions s ON s.id = h.session_id
			WHERE h.project = ? AND h.session_id != ? AND s.status IN ('completed', 'outdated')
			  AND h.file_path IN (`+placeholders(len(chunk))+`)
			ORDER BY h.file_path, h.period_end
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query file history: %w", err)
		}
		for rows.Next() {
			p := types.FileHistoryPoint{Project: project}
			if err := rows.Scan(&p.FilePath, &p.SessionID, &p.PeriodEnd, &p.ChangeFrequency); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan file history: %w", err)
			}
			p.PeriodEnd = p.PeriodEnd.UTC()
			out[p.FilePath] = append(out[p.FilePath], p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
