// Package activity defines the read-only contract to the external activity
// store (commits, file changes, developer sessions) and loads bounded,
// paginated snapshots of it for a discovery session.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/steveyegge/devpulse/internal/types"
)

// Source is the read-only activity store. Reads are bounded by commit range
// and paginated.
type Source interface {
	// ListCommits returns commits whose author date falls in rng, ordered by
	// author date then sha.
	ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error)

	// ListFileChanges returns the file changes of the given commits.
	ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error)

	// ListDeveloperSessions returns developer sessions that overlap rng.
	ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error)
}

// LoaderConfig bounds the loader's reads.
type LoaderConfig struct {
	// PageSize is the number of commits requested per ListCommits call.
	PageSize int `yaml:"page_size"`
	// ShaChunk is the number of shas passed per ListFileChanges call.
	ShaChunk int `yaml:"sha_chunk"`
	// MaxCommits caps a single snapshot. 0 means unlimited.
	MaxCommits int `yaml:"max_commits"`
}

// DefaultLoaderConfig returns the default read bounds.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{PageSize: 500, ShaChunk: 200}
}

// Validate checks the loader bounds.
func (c LoaderConfig) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive (got %d)", c.PageSize)
	}
	if c.ShaChunk <= 0 {
		return fmt.Errorf("sha_chunk must be positive (got %d)", c.ShaChunk)
	}
	if c.MaxCommits < 0 {
		return fmt.Errorf("max_commits must be non-negative (got %d)", c.MaxCommits)
	}
	return nil
}

// Loader pulls a Snapshot from a Source.
type Loader struct {
	source Source
	cfg    LoaderConfig
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger uses slog.Default().
func NewLoader(source Source, cfg LoaderConfig, logger *slog.Logger) (*Loader, error) {
	if source == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loader config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, cfg: cfg, logger: logger.With("component", "activity_loader")}, nil
}

// Load reads all activity for project within rng.
func (l *Loader) Load(ctx context.Context, project string, rng types.CommitRange) (*Snapshot, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var commits []*types.Commit
	for offset := 0; ; offset += l.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := l.source.ListCommits(ctx, project, rng, offset, l.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list commits at offset %d: %w", offset, err)
		}
		commits = append(commits, page...)
		if l.cfg.MaxCommits > 0 && len(commits) >= l.cfg.MaxCommits {
			l.logger.Warn("commit cap reached, truncating snapshot",
				"project", project, "max_commits", l.cfg.MaxCommits)
			commits = commits[:l.cfg.MaxCommits]
			break
		}
		if len(page) < l.cfg.PageSize {
			break
		}
	}

	shas := make([]string, len(commits))
	for i, c := range commits {
		shas[i] = c.SHA
	}

	var changes []*types.FileChange
	for start := 0; start < len(shas); start += l.cfg.ShaChunk {
		end := start + l.cfg.ShaChunk
		if end > len(shas) {
			end = len(shas)
		}
		chunk, err := l.source.ListFileChanges(ctx, project, shas[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to list file changes: %w", err)
		}
		changes = append(changes, chunk...)
	}

	sessions, err := l.source.ListDeveloperSessions(ctx, project, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to list developer sessions: %w", err)
	}

	snap := NewSnapshot(project, rng, commits, changes, sessions)
	l.logger.Debug("activity loaded",
		"project", project, "commits", len(snap.Commits), "file_changes", len(snap.FileChanges),
		"sessions", len(snap.Sessions))
	return snap, nil
}

// Snapshot is an immutable view of a project's activity inside a range.
// Miners read from it concurrently and must not modify it.
type Snapshot struct {
	Project     string
	Range       types.CommitRange
	Commits     []*types.Commit
	FileChanges []*types.FileChange
	Sessions    []*types.DeveloperSession

	commitBySHA   map[string]*types.Commit
	filesByCommit map[string][]*types.FileChange
}

// NewSnapshot indexes the given records. Commits outside rng and file changes
// of unknown commits are dropped; commits are ordered by author date then sha.
func NewSnapshot(project string, rng types.CommitRange, commits []*types.Commit, changes []*types.FileChange, sessions []*types.DeveloperSession) *Snapshot {
	s := &Snapshot{
		Project:       project,
		Range:         rng,
		Sessions:      sessions,
		commitBySHA:   make(map[string]*types.Commit, len(commits)),
		filesByCommit: make(map[string][]*types.FileChange, len(commits)),
	}

	for _, c := range commits {
		if !rng.Contains(c.AuthorDate) {
			continue
		}
		if _, dup := s.commitBySHA[c.SHA]; dup {
			continue
		}
		s.commitBySHA[c.SHA] = c
		s.Commits = append(s.Commits, c)
	}
	sort.Slice(s.Commits, func(i, j int) bool {
		a, b := s.Commits[i], s.Commits[j]
		if !a.AuthorDate.Equal(b.AuthorDate) {
			return a.AuthorDate.Before(b.AuthorDate)
		}
		return a.SHA < b.SHA
	})

	for _, fc := range changes {
		if _, ok := s.commitBySHA[fc.Commit]; !ok {
			continue
		}
		s.FileChanges = append(s.FileChanges, fc)
		s.filesByCommit[fc.Commit] = append(s.filesByCommit[fc.Commit], fc)
	}
	return s
}

// Commit returns the commit with the given sha, or nil.
func (s *Snapshot) Commit(sha string) *types.Commit {
	return s.commitBySHA[sha]
}

// FilesOf returns the file changes of a commit.
func (s *Snapshot) FilesOf(sha string) []*types.FileChange {
	return s.filesByCommit[sha]
}

// TotalCommits is the number of commits in range.
func (s *Snapshot) TotalCommits() int {
	return len(s.Commits)
}

// DistinctFiles returns the sorted set of file paths touched in range.
func (s *Snapshot) DistinctFiles() []string {
	seen := make(map[string]struct{})
	for _, fc := range s.FileChanges {
		seen[fc.FilePath] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Batch returns the snapshot's records as an import batch.
func (s *Snapshot) Batch() *types.ActivityBatch {
	return &types.ActivityBatch{
		Commits:     s.Commits,
		FileChanges: s.FileChanges,
		Sessions:    s.Sessions,
	}
}
