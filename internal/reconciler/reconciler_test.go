package reconciler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codex-index/internal/chunk"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/pipeline"
	"github.com/kraklabs/codex-index/internal/registry"
	"github.com/kraklabs/codex-index/internal/scanner"
	"github.com/kraklabs/codex-index/internal/snapshot"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t) + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int                               { return f.dim }
func (f *fakeEmbedder) DetectDimension(context.Context) (int, error) { return f.dim, nil }
func (f *fakeEmbedder) ProviderName() string                         { return "fake" }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644))
	return dir
}

func newHarness(t *testing.T) (*registry.Registry, *pipeline.Pipeline, vectorstore.Store, string) {
	t.Helper()
	splitter := chunk.NewSplitter()
	t.Cleanup(splitter.Close)

	store, err := vectorstore.NewManager("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deps := pipeline.Dependencies{
		Scanner:  scanner.New(),
		Splitter: splitter,
		Embedder: &fakeEmbedder{dim: 4},
		Store:    store,
		Logger:   testLogger(),
	}
	perf := config.PerformanceConfig{FileConcurrency: 2, APIConcurrency: 2, MemoryLimitMB: 1536}
	p := pipeline.New(deps, perf)

	reg, err := registry.NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	return reg, p, store, t.TempDir()
}

func TestReconcilerAppliesChangesForIndexedCodebases(t *testing.T) {
	root := writeRepo(t)
	ctx := context.Background()
	reg, p, store, dataDir := newHarness(t)

	collection := registry.CollectionNameFor(root, false)
	require.NoError(t, reg.Register(root, false))
	_, err := p.IndexCodebase(ctx, pipeline.IndexOptions{Root: root, CollectionName: collection})
	require.NoError(t, err)
	require.NoError(t, reg.SetIndexed(root, 1, 1))

	sync, err := snapshot.Initialize(dataDir, root, nil, "", testLogger())
	require.NoError(t, err)
	_, err = sync.CheckForChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, sync.Commit())

	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.go"), []byte("package main\n\nfunc Extra() {}\n"), 0644))

	r := New(Config{
		Registry: reg,
		Pipeline: p,
		DataDir:  dataDir,
		Logger:   testLogger(),
	})
	r.tick(ctx)

	docs, err := store.Query(ctx, collection, "relative_path=extra.go", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
}

func TestReconcilerSkipsMissingRootWithoutRemoving(t *testing.T) {
	root := writeRepo(t)
	ctx := context.Background()
	reg, p, _, dataDir := newHarness(t)

	collection := registry.CollectionNameFor(root, false)
	require.NoError(t, reg.Register(root, false))
	_, err := p.IndexCodebase(ctx, pipeline.IndexOptions{Root: root, CollectionName: collection})
	require.NoError(t, err)
	require.NoError(t, reg.SetIndexed(root, 1, 1))

	require.NoError(t, os.RemoveAll(root))

	r := New(Config{Registry: reg, Pipeline: p, DataDir: dataDir, Logger: testLogger()})
	r.tick(ctx)

	require.Equal(t, registry.StateIndexed, reg.Status(root))
}

func TestReconcilerStopsWhenRegistryHasNoIndexedCodebases(t *testing.T) {
	ctx := context.Background()
	reg, p, _, dataDir := newHarness(t)

	r := New(Config{Registry: reg, Pipeline: p, DataDir: dataDir, Logger: testLogger()})
	r.tick(ctx)
	require.True(t, r.stopped.Load())
}

func TestNotifyIsNonBlockingAndCoalesces(t *testing.T) {
	reg, p, _, dataDir := newHarness(t)
	r := New(Config{Registry: reg, Pipeline: p, DataDir: dataDir, Logger: testLogger()})

	done := make(chan struct{})
	go func() {
		r.Notify()
		r.Notify()
		r.Notify()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
	require.Len(t, r.wake, 1)
}

func TestRunRestartsTickingAfterNotifyWakesStoppedLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := writeRepo(t)
	reg, p, store, dataDir := newHarness(t)

	r := New(Config{
		Registry:     reg,
		Pipeline:     p,
		DataDir:      dataDir,
		Logger:       testLogger(),
		InitialDelay: 5 * time.Millisecond,
		Interval:     time.Hour,
	})

	go r.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	require.True(t, r.stopped.Load())

	collection := registry.CollectionNameFor(root, false)
	require.NoError(t, reg.Register(root, false))
	_, err := p.IndexCodebase(ctx, pipeline.IndexOptions{Root: root, CollectionName: collection})
	require.NoError(t, err)
	require.NoError(t, reg.SetIndexed(root, 1, 1))

	sync, err := snapshot.Initialize(dataDir, root, nil, "", testLogger())
	require.NoError(t, err)
	_, err = sync.CheckForChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, sync.Commit())
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.go"), []byte("package main\n\nfunc Extra() {}\n"), 0644))

	r.Notify()
	require.Eventually(t, func() bool {
		docs, err := store.Query(ctx, collection, "relative_path=extra.go", nil, 0)
		return err == nil && len(docs) > 0
	}, time.Second, 5*time.Millisecond)
}
