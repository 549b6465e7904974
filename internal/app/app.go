// Package app wires the C1-C11 components into the four operations spec
// §6 exposes (index_codebase, search_code, clear_index,
// get_indexing_status), building the metadata/vector/embedder stack inline
// once per process rather than through a dependency-injection framework.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kraklabs/codex-index/internal/chunk"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/coordination"
	"github.com/kraklabs/codex-index/internal/embedding"
	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/kraklabs/codex-index/internal/lifecycle"
	"github.com/kraklabs/codex-index/internal/pipeline"
	"github.com/kraklabs/codex-index/internal/query"
	"github.com/kraklabs/codex-index/internal/reconciler"
	"github.com/kraklabs/codex-index/internal/registry"
	"github.com/kraklabs/codex-index/internal/scanner"
	"github.com/kraklabs/codex-index/internal/snapshot"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// App is the long-lived object both cmd/codexctl and cmd/codex-mcp build
// once per process and drive the four public operations through.
type App struct {
	Config      *config.Config
	Registry    *registry.Registry
	Store       vectorstore.Store
	Embedder    embedding.Embedder
	Pipeline    *pipeline.Pipeline
	Router      *query.Router
	Lock        *coordination.Lock
	LockTimeout time.Duration
	Recon       *reconciler.Reconciler
	Logger      *slog.Logger

	scanner  *scanner.Scanner
	splitter *chunk.Splitter
	dataDir  string
}

// New builds an App rooted at dataDir (typically "~/.context"), applying
// cfg's resolved settings. The returned App owns the splitter's tree-sitter
// parser handles; callers must call Close.
func New(ctx context.Context, cfg *config.Config, dataDir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := vectorstore.NewManager(filepath.Join(dataDir, "vectors"), 0)
	if err != nil {
		return nil, fmt.Errorf("app: open vector store: %w", err)
	}

	ollamaHost := cfg.Embeddings.OllamaHost
	if ollamaHost == "" {
		ollamaHost = lifecycle.DefaultHost
	}
	ollamaModel := cfg.Embeddings.Model
	if ollamaModel == "" {
		ollamaModel = lifecycle.DefaultModel
	}
	mgr := lifecycle.NewOllamaManagerWithHost(ollamaHost)
	ensureOpts := lifecycle.DefaultEnsureOpts()
	ensureOpts.Stdout = io.Discard
	ensureOpts.Stderr = io.Discard
	if err := mgr.EnsureReady(ctx, ollamaModel, ensureOpts); err != nil {
		logger.Warn("app: ollama not ready, embedding calls will fail until it is", "error", err)
	}

	provider := embedding.NewOllamaProvider(embedding.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	client := embedding.NewClient(provider, cfg.Embeddings.BatchSize, embedding.DefaultTokenBudget)
	embedder := embedding.Embedder(embedding.NewCachedEmbedder(client, 4096))

	reg, err := registry.NewRegistry(cfg.Registry.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("app: open registry: %w", err)
	}

	sc := scanner.New()
	splitter := chunk.NewSplitter()

	p := pipeline.New(pipeline.Dependencies{
		Scanner:  sc,
		Splitter: splitter,
		Embedder: embedder,
		Store:    store,
		Logger:   logger,
	}, cfg.Performance)

	router := query.New(reg, embedder, store, cfg.Search.HybridMode)

	lockTimeout, err := time.ParseDuration(cfg.Coordinator.LockTimeout)
	if err != nil {
		lockTimeout = coordination.DefaultLockTimeout
	}
	lockDir := filepath.Join(dataDir, "locks")
	lock := coordination.NewLock(lockDir, "index")

	recon := reconciler.New(reconciler.Config{
		Registry:         reg,
		Pipeline:         p,
		DataDir:          dataDir,
		IgnorePatterns:   cfg.Paths.CustomIgnorePatterns,
		GlobalIgnoreFile: "",
		Logger:           logger,
	})

	return &App{
		Config:      cfg,
		Registry:    reg,
		Store:       store,
		Embedder:    embedder,
		Pipeline:    p,
		Router:      router,
		Lock:        lock,
		LockTimeout: lockTimeout,
		Recon:       recon,
		Logger:      logger,
		scanner:     sc,
		splitter:    splitter,
		dataDir:     dataDir,
	}, nil
}

// Close releases native resources (tree-sitter handles, the vector store's
// underlying files).
func (a *App) Close() error {
	a.splitter.Close()
	return a.Store.Close()
}

// Canonicalize resolves path the way spec §6's path contract requires:
// absolute, slash-normalized. It does not require the path to exist.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.PathError(errs.CodeInternal, path, err)
	}
	return filepath.ToSlash(abs), nil
}
