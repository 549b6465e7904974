package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codex-index/internal/snapshot"
)

func TestReindexByChangeHandlesAddedAndRemoved(t *testing.T) {
	root := writeTestRepo(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	p, _, store := newTestPipeline(t)
	_, err := p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)

	sync, err := snapshot.Initialize(dataDir, root, nil, "", testLogger())
	require.NoError(t, err)
	baseline, err := sync.CheckForChanges(ctx)
	require.NoError(t, err)
	require.False(t, baseline.Empty())
	require.NoError(t, sync.Commit())

	require.NoError(t, os.Remove(filepath.Join(root, "pkg", "util.go")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.go"), []byte("package main\n\nfunc Extra() {}\n"), 0644))

	result, err := p.ReindexByChange(ctx, sync, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Equal(t, 1, result.Removed)
	require.Equal(t, 0, result.Modified)

	removed, err := store.Query(ctx, "coll", "relative_path=pkg/util.go", nil, 0)
	require.NoError(t, err)
	require.Empty(t, removed)

	added, err := store.Query(ctx, "coll", "relative_path=extra.go", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, added)
}

func TestReindexByChangeNoopWhenUnchanged(t *testing.T) {
	root := writeTestRepo(t)
	dataDir := t.TempDir()
	ctx := context.Background()

	p, _, _ := newTestPipeline(t)
	_, err := p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)

	sync, err := snapshot.Initialize(dataDir, root, nil, "", testLogger())
	require.NoError(t, err)
	_, err = sync.CheckForChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, sync.Commit())

	result, err := p.ReindexByChange(ctx, sync, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)
	require.Equal(t, ReindexResult{}, result)
}
