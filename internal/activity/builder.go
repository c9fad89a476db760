package activity

import (
	"fmt"
	"time"

	"github.com/steveyegge/devpulse/internal/types"
)

// FileSpec describes one file touched by a built commit.
type FileSpec struct {
	Path    string
	Added   int
	Removed int
}

// Builder assembles activity batches for imports and fixtures.
type Builder struct {
	project string
	batch   types.ActivityBatch
}

// NewBuilder starts a batch for project.
func NewBuilder(project string) *Builder {
	return &Builder{project: project}
}

// Commit adds a commit authored by email at the given time touching files.
func (b *Builder) Commit(sha, email string, at time.Time, files ...FileSpec) *Builder {
	c := &types.Commit{
		Project:        b.project,
		SHA:            sha,
		Author:         email,
		AuthorEmail:    email,
		Committer:      email,
		CommitterEmail: email,
		AuthorDate:     at,
		CommitterDate:  at,
		Branch:         "main",
		FilesChanged:   len(files),
		Message:        fmt.Sprintf("change %s", sha),
	}
	for _, f := range files {
		c.Insertions += f.Added
		c.Deletions += f.Removed
		b.batch.FileChanges = append(b.batch.FileChanges, &types.FileChange{
			Project:      b.project,
			Commit:       sha,
			FilePath:     f.Path,
			ChangeType:   types.ChangeModified,
			LinesAdded:   f.Added,
			LinesRemoved: f.Removed,
		})
	}
	b.batch.Commits = append(b.batch.Commits, c)
	return b
}

// Session adds a developer session.
func (b *Builder) Session(email string, start, end time.Time) *Builder {
	b.batch.Sessions = append(b.batch.Sessions, &types.DeveloperSession{
		Project:   b.project,
		Developer: email,
		StartedAt: start,
		EndedAt:   end,
	})
	return b
}

// Batch returns the assembled batch.
func (b *Builder) Batch() *types.ActivityBatch {
	return &b.batch
}

// Source returns a MemorySource holding the batch.
func (b *Builder) Source() (*MemorySource, error) {
	src := NewMemorySource()
	if err := src.Add(&b.batch); err != nil {
		return nil, err
	}
	return src, nil
}
