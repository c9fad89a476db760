package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/devpulse/internal/events"
)

// RecordEvent stores an audit event.
func (s *SQLiteStorage) RecordEvent(ctx context.Context, event *events.Event) error {
	return insertEvent(ctx, s.db, event)
}

func insertEvent(ctx context.Context, q querier, event *events.Event) error {
	if event == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data := "{}"
	if event.Data != nil {
		var err error
		if data, err = toJSON(event.Data); err != nil {
			return err
		}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO events (type, project, entity_id, severity, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.Type, event.Project, event.EntityID, event.Severity, event.Message, data, event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// recordAll inserts events built by constructors that may fail.
func recordAll(ctx context.Context, q querier, evs ...*events.Event) error {
	for _, e := range evs {
		if err := insertEvent(ctx, q, e); err != nil {
			return err
		}
	}
	return nil
}

// ListEvents returns events matching the filter, newest first.
func (s *SQLiteStorage) ListEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	var where []string
	var args []interface{}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		where = append(where, "timestamp > ?")
		args = append(args, filter.AfterTime.UTC())
	}

	query := `SELECT id, type, project, entity_id, severity, message, data, timestamp FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var e events.Event
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.Project, &e.EntityID, &e.Severity, &e.Message, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := fromJSON(data, &e.Data); err != nil {
			return nil, err
		}
		if len(e.Data) == 0 {
			e.Data = nil
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CleanupEvents deletes events older than retention, returning the count.
func (s *SQLiteStorage) CleanupEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	return res.RowsAffected()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
