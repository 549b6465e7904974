package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codex-index/internal/chunk"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/scanner"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// fakeEmbedder is a deterministic, dependency-free stand-in for the
// embedding client (C5) — the pipeline only needs Embedder's interface, not
// its retry/batching behavior, which is tested in package embedding.
type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t) + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int                              { return f.dim }
func (f *fakeEmbedder) DetectDimension(context.Context) (int, error) { return f.dim, nil }
func (f *fakeEmbedder) ProviderName() string                        { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.go":     "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n",
		"pkg/util.go": "package pkg\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
	}
	for rel, content := range files {
		abs := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
	}
	return dir
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEmbedder, vectorstore.Store) {
	t.Helper()
	splitter := chunk.NewSplitter()
	t.Cleanup(splitter.Close)

	store, err := vectorstore.NewManager("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := &fakeEmbedder{dim: 4}

	deps := Dependencies{
		Scanner:  scanner.New(),
		Splitter: splitter,
		Embedder: embedder,
		Store:    store,
		Logger:   testLogger(),
	}
	perf := config.PerformanceConfig{FileConcurrency: 2, APIConcurrency: 2, MemoryLimitMB: 1536}
	return New(deps, perf), embedder, store
}

func TestIndexCodebaseIndexesAllFiles(t *testing.T) {
	root := writeTestRepo(t)
	p, embedder, store := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.IndexCodebase(ctx, IndexOptions{
		Root:           root,
		CollectionName: "test_collection",
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 2, result.IndexedFiles)
	require.Positive(t, result.TotalChunks)
	require.Positive(t, embedder.calls)

	docs, err := store.Query(ctx, "test_collection", "", nil, 0)
	require.NoError(t, err)
	require.Len(t, docs, result.TotalChunks)
}

func TestIndexCodebaseRejectsExistingCollectionWithoutForce(t *testing.T) {
	root := writeTestRepo(t)
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)

	_, err = p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll"})
	require.Error(t, err)
}

func TestIndexCodebaseForceRecreatesCollection(t *testing.T) {
	root := writeTestRepo(t)
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll"})
	require.NoError(t, err)

	result, err := p.IndexCodebase(ctx, IndexOptions{Root: root, CollectionName: "coll", Force: true})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
}

func TestIndexCodebaseEmptyRootReportsNoFiles(t *testing.T) {
	root := t.TempDir()
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	var phases []string
	result, err := p.IndexCodebase(ctx, IndexOptions{
		Root:           root,
		CollectionName: "coll",
		Progress:       func(percent int, phase string) { phases = append(phases, phase) },
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Zero(t, result.TotalChunks)
	require.Contains(t, phases, "No files to index")
}

func TestIndexCodebaseHybridInsertsIntoBothLegs(t *testing.T) {
	root := writeTestRepo(t)
	p, _, store := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.IndexCodebase(ctx, IndexOptions{
		Root:           root,
		CollectionName: "hybrid_coll",
		Hybrid:         true,
	})
	require.NoError(t, err)
	require.Positive(t, result.TotalChunks)

	hits, err := store.HybridSearch(ctx, "hybrid_coll",
		vectorstore.DenseRequest{Vector: []float32{1, 0, 0, 0}, TopK: 5},
		vectorstore.SparseRequest{Query: "func", TopK: 5},
		vectorstore.HybridOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestProgressIsMonotonicNonDecreasing(t *testing.T) {
	root := writeTestRepo(t)
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	last := -1
	_, err := p.IndexCodebase(ctx, IndexOptions{
		Root:           root,
		CollectionName: "coll",
		Progress: func(percent int, phase string) {
			require.GreaterOrEqual(t, percent, last)
			last = percent
		},
	})
	require.NoError(t, err)
	require.Equal(t, 100, last)
}
