package activity

import (
	"context"
	"sort"
	"sync"

	"github.com/steveyegge/devpulse/internal/types"
)

// MemorySource is an in-process Source over a fixed batch of records.
// It backs tests and the JSON import path.
type MemorySource struct {
	mu       sync.RWMutex
	commits  map[string][]*types.Commit
	changes  map[string][]*types.FileChange
	sessions map[string][]*types.DeveloperSession
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		commits:  make(map[string][]*types.Commit),
		changes:  make(map[string][]*types.FileChange),
		sessions: make(map[string][]*types.DeveloperSession),
	}
}

// Add appends a batch after validating it.
func (m *MemorySource) Add(batch *types.ActivityBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range batch.Commits {
		m.commits[c.Project] = append(m.commits[c.Project], c)
	}
	for _, fc := range batch.FileChanges {
		m.changes[fc.Project] = append(m.changes[fc.Project], fc)
	}
	for _, s := range batch.Sessions {
		m.sessions[s.Project] = append(m.sessions[s.Project], s)
	}
	return nil
}

// ListCommits implements Source.
func (m *MemorySource) ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error) {
	m.mu.RLock()
	var in []*types.Commit
	for _, c := range m.commits[project] {
		if rng.Contains(c.AuthorDate) {
			in = append(in, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(in, func(i, j int) bool {
		if !in[i].AuthorDate.Equal(in[j].AuthorDate) {
			return in[i].AuthorDate.Before(in[j].AuthorDate)
		}
		return in[i].SHA < in[j].SHA
	})
	if offset >= len(in) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(in) {
		end = len(in)
	}
	return in[offset:end], nil
}

// ListFileChanges implements Source.
func (m *MemorySource) ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error) {
	want := make(map[string]struct{}, len(shas))
	for _, s := range shas {
		want[s] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.FileChange
	for _, fc := range m.changes[project] {
		if _, ok := want[fc.Commit]; ok {
			out = append(out, fc)
		}
	}
	return out, nil
}

// ListDeveloperSessions implements Source.
func (m *MemorySource) ListDeveloperSessions(ctx context.Context, project string, rng types.CommitRange) ([]*types.DeveloperSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.DeveloperSession
	for _, s := range m.sessions[project] {
		if !s.EndedAt.Before(rng.Start) && !s.StartedAt.After(rng.End) {
			out = append(out, s)
		}
	}
	return out, nil
}
