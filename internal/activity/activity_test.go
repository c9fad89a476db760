package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/devpulse/internal/types"
)

var base = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func fixture(t *testing.T, n int) *MemorySource {
	t.Helper()
	b := NewBuilder("proj")
	for i := 0; i < n; i++ {
		b.Commit(fmt.Sprintf("c%03d", i), "dev@example.com", base.Add(time.Duration(i)*time.Hour),
			FileSpec{Path: "a.go", Added: 1}, FileSpec{Path: "b.go", Removed: 2})
	}
	b.Session("dev@example.com", base, base.Add(2*time.Hour))
	src, err := b.Source()
	require.NoError(t, err)
	return src
}

// countingSource records how many pages the loader asked for.
type countingSource struct {
	*MemorySource
	commitCalls int
	changeCalls int
}

func (c *countingSource) ListCommits(ctx context.Context, project string, rng types.CommitRange, offset, limit int) ([]*types.Commit, error) {
	c.commitCalls++
	return c.MemorySource.ListCommits(ctx, project, rng, offset, limit)
}

func (c *countingSource) ListFileChanges(ctx context.Context, project string, shas []string) ([]*types.FileChange, error) {
	c.changeCalls++
	return c.MemorySource.ListFileChanges(ctx, project, shas)
}

func TestLoaderPaginates(t *testing.T) {
	src := &countingSource{MemorySource: fixture(t, 25)}
	loader, err := NewLoader(src, LoaderConfig{PageSize: 10, ShaChunk: 7}, nil)
	require.NoError(t, err)

	rng := types.CommitRange{Start: base, End: base.Add(48 * time.Hour)}
	snap, err := loader.Load(context.Background(), "proj", rng)
	require.NoError(t, err)

	assert.Equal(t, 25, snap.TotalCommits())
	assert.Len(t, snap.FileChanges, 50)
	assert.Len(t, snap.Sessions, 1)
	assert.Equal(t, 3, src.commitCalls)
	assert.Equal(t, 4, src.changeCalls)
	assert.Equal(t, []string{"a.go", "b.go"}, snap.DistinctFiles())
	assert.Len(t, snap.FilesOf("c000"), 2)
	assert.NotNil(t, snap.Commit("c024"))
}

func TestLoaderRespectsRangeAndCap(t *testing.T) {
	src := fixture(t, 10)
	loader, err := NewLoader(src, LoaderConfig{PageSize: 4, ShaChunk: 100, MaxCommits: 3}, nil)
	require.NoError(t, err)

	rng := types.CommitRange{Start: base.Add(2 * time.Hour), End: base.Add(8 * time.Hour)}
	snap, err := loader.Load(context.Background(), "proj", rng)
	require.NoError(t, err)
	require.Equal(t, 3, snap.TotalCommits())
	assert.Equal(t, "c002", snap.Commits[0].SHA)
}

func TestLoaderRejectsBadRange(t *testing.T) {
	loader, err := NewLoader(NewMemorySource(), DefaultLoaderConfig(), nil)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), "proj", types.CommitRange{Start: base, End: base.Add(-time.Hour)})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestLoaderConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultLoaderConfig().Validate())
	assert.Error(t, LoaderConfig{PageSize: 0, ShaChunk: 1}.Validate())
	assert.Error(t, LoaderConfig{PageSize: 1, ShaChunk: 0}.Validate())
	_, err := NewLoader(nil, DefaultLoaderConfig(), nil)
	assert.Error(t, err)
}

func TestSnapshotDropsOrphansAndDuplicates(t *testing.T) {
	rng := types.CommitRange{Start: base, End: base.Add(time.Hour)}
	c := &types.Commit{SHA: "x", AuthorDate: base}
	outside := &types.Commit{SHA: "y", AuthorDate: base.Add(2 * time.Hour)}
	changes := []*types.FileChange{
		{Commit: "x", FilePath: "a"},
		{Commit: "y", FilePath: "b"},
		{Commit: "zzz", FilePath: "c"},
	}
	snap := NewSnapshot("p", rng, []*types.Commit{c, c, outside}, changes, nil)
	assert.Equal(t, 1, snap.TotalCommits())
	assert.Len(t, snap.FileChanges, 1)
}
