// Package pgsource implements activity.Source over an external PostgreSQL
// activity store. The store is read-only from devpulse's point of view; it
// is expected to expose the commits, file_changes and developer_sessions
// tables described in Schema.
package pgsource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steveyegge/devpulse/internal/types"
)

// Schema documents the tables the source reads. It is applied only by
// EnsureSchema, which exists for local development and integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS commits (
    project TEXT NOT NULL,
    sha TEXT NOT NULL,
    author TEXT NOT NULL,
    author_email TEXT NOT NULL DEFAULT '',
    committer TEXT NOT NULL,
    committer_email TEXT NOT NULL DEFAULT '',
    author_date TIMESTAMPTZ NOT NULL,
    committer_date TIMESTAMPTZ NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    parent_shas TEXT[] NOT NULL DEFAULT '{}',
    files_changed INTEGER NOT NULL DEFAULT 0,
    insertions INTEGER NOT NULL DEFAULT 0,
    deletions INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL CHECK (length(message) > 0),
    PRIMARY KEY (project, sha),
    CHECK (committer_date >= author_date)
);
CREATE INDEX IF NOT EXISTS idx_commits_author_date ON commits(project, author_date);

CREATE TABLE IF NOT EXISTS file_changes (
    project TEXT NOT NULL,
    commit_sha TEXT NOT NULL,
    file_path TEXT NOT NULL,
    change_type TEXT NOT NULL CHECK (change_type IN ('added','modified','deleted','renamed','copied','typechange')),
    lines_added INTEGER NOT NULL DEFAULT 0,
    lines_removed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project, commit_sha, file_path)
);

CREATE TABLE IF NOT EXISTS developer_sessions (
    project TEXT NOT NULL,
    developer TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_developer_sessions_range ON developer_sessions(project, started_at, ended_at);
`

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "activity",
		User:            "devpulse",
		SSLMode:         "prefer",
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		HealthCheck:     1 * time.Minute,
	}
}

// ConnString builds the pgx connection string.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Source reads activity from PostgreSQL through a pgx pool.
type Source struct {
	pool *pgxpool.Pool
}

// New connects to the activity database.
func New(ctx context.Context, cfg *Config) (*Source, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Source{pool: pool}, nil
}

// EnsureSchema creates the activity tables if they are missing.
func (s *Source) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create activity schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Source) Close() {
	s.pool.Close()
}

// ListCommits implements activity.Source.
func (s *Source) ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project, sha, author, author_email, committer, committer_email,
		       author_date, committer_date, branch, parent_shas,
		       files_changed, insertions, deletions, message
		FROM commits
		WHERE project = $1 AND author_date BETWEEN $2 AND $3
		ORDER BY author_date, sha
		OFFSET $4 LIMIT $5
	`, project, rng.Start, rng.End, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}

	commits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.Commit, error) {
		var c types.Commit
		err := row.Scan(&c.Project, &c.SHA, &c.Author, &c.AuthorEmail, &c.Committer, &c.CommitterEmail,
			&c.AuthorDate, &c.CommitterDate, &c.Branch, &c.ParentSHAs,
			&c.FilesChanged, &c.Insertions, &c.Deletions, &c.Message)
		return &c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan commits: %w", err)
	}
	return commits, nil
}

// ListFileChanges implements activity.Source.
func (s *Source) ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error) {
	if len(shas) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT project, commit_sha, file_path, change_type, lines_added, lines_removed
		FROM file_changes
		WHERE project = $1 AND commit_sha = ANY($2)
		ORDER BY commit_sha, file_path
	`, project, shas)
	if err != nil {
		return nil, fmt.Errorf("failed to query file changes: %w", err)
	}

	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.FileChange, error) {
		var fc types.FileChange
		var changeType string
		err := row.Scan(&fc.Project, &fc.Commit, &fc.FilePath, &changeType, &fc.LinesAdded, &fc.LinesRemoved)
		fc.ChangeType = types.ChangeType(changeType)
		return &fc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan file changes: %w", err)
	}
	return changes, nil
}

// ListDeveloperSessions implements activity.Source.
func (s *Source) ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project, developer, started_at, ended_at
		FROM developer_sessions
		WHERE project = $1 AND ended_at >= $2 AND started_at <= $3
		ORDER BY started_at
	`, project, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query developer sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.DeveloperSession, error) {
		var ds types.DeveloperSession
		err := row.Scan(&ds.Project, &ds.Developer, &ds.StartedAt, &ds.EndedAt)
		return &ds, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan developer sessions: %w", err)
	}
	return sessions, nil
}

// Import writes a batch into the activity tables. Used by local tooling and
// tests; production producers own these tables.
func (s *Source) Import(ctx context.Context, batch *types.ActivityBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, c := range batch.Commits {
		parents := c.ParentSHAs
		if parents == nil {
			parents = []string{}
		}
		b.Queue(`
			INSERT INTO commits (project, sha, author, author_email, committer, committer_email,
			                     author_date, committer_date, branch, parent_shas,
			                     files_changed, insertions, deletions, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (project, sha) DO NOTHING
		`, c.Project, c.SHA, c.Author, c.AuthorEmail, c.Committer, c.CommitterEmail,
			c.AuthorDate, c.CommitterDate, c.Branch, parents,
			c.FilesChanged, c.Insertions, c.Deletions, c.Message)
	}
	for _, fc := range batch.FileChanges {
		b.Queue(`
			INSERT INTO file_changes (project, commit_sha, file_path, change_type, lines_added, lines_removed)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (project, commit_sha, file_path) DO NOTHING
		`, fc.Project, fc.Commit, fc.FilePath, string(fc.ChangeType), fc.LinesAdded, fc.LinesRemoved)
	}
	for _, ds := range batch.Sessions {
		b.Queue(`
			INSERT INTO developer_sessions (project, developer, started_at, ended_at)
			VALUES ($1, $2, $3, $4)
		`, ds.Project, ds.Developer, ds.StartedAt, ds.EndedAt)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("failed to import activity batch: %w", err)
	}
	return tx.Commit(ctx)
}
