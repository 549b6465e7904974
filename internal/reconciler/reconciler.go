// Package reconciler implements the Background Reconciler (C9): a
// fixed-cadence loop that applies C4 diffs through C7 for every registered,
// fully indexed codebase, per spec §4.9.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/codex-index/internal/ignore"
	"github.com/kraklabs/codex-index/internal/pipeline"
	"github.com/kraklabs/codex-index/internal/registry"
	"github.com/kraklabs/codex-index/internal/snapshot"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// DefaultInterval and DefaultInitialDelay match spec §4.9's cadence.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultInitialDelay = 5 * time.Second
)

// Config parameterizes a Reconciler.
type Config struct {
	Registry *registry.Registry
	Pipeline *pipeline.Pipeline

	// DataDir is the directory snapshot.Synchronizer stores per-codebase
	// snapshot files under.
	DataDir string

	// GlobalIgnoreFile and IgnorePatterns reproduce the ignore configuration
	// the original index run used; the Registry does not persist per-root
	// ignore settings, so a process-wide default is applied to every
	// codebase reconciled (spec §4.9 does not name per-root ignore
	// overrides as part of reconciliation).
	GlobalIgnoreFile string
	IgnorePatterns   []string

	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
}

// Reconciler runs the background sync loop described in spec §4.9: at most
// one run active per Reconciler (an in-process flag; runs in separate
// processes are not coordinated with each other), per-codebase errors
// isolated, self-stopping when the registry is empty until woken by a new
// registration.
type Reconciler struct {
	cfg          Config
	ignoreCache  *ignore.Cache
	gitignoreSum map[string]string

	running atomic.Bool
	stopped atomic.Bool
	wake    chan struct{}
}

// New constructs a Reconciler. Interval/InitialDelay default to the spec
// values when zero.
func New(cfg Config) *Reconciler {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cache, err := ignore.NewCache(cfg.GlobalIgnoreFile, cfg.Logger)
	if err != nil {
		// NewCache only fails on an invalid LRU size, which cacheSize never
		// triggers; fall back to a resolver rebuilt fresh every tick rather
		// than failing construction.
		cache = nil
	}
	return &Reconciler{cfg: cfg, ignoreCache: cache, gitignoreSum: make(map[string]string), wake: make(chan struct{}, 1)}
}

// Notify wakes a stopped Reconciler after a new codebase registration. It
// is a no-op if the loop is already running a ticker.
func (r *Reconciler) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drives the reconcile loop until ctx is cancelled. Callers typically
// run this in its own goroutine for the lifetime of the process.
func (r *Reconciler) Run(ctx context.Context) {
	timer := time.NewTimer(r.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.tick(ctx)
			if r.stopped.Load() {
				continue
			}
			timer.Reset(r.cfg.Interval)
		case <-r.wake:
			if r.stopped.Load() {
				r.stopped.Store(false)
				timer.Reset(r.cfg.InitialDelay)
			}
		}
	}
}

// tick runs one reconcile pass unless one is already in flight, in which
// case it is silently skipped per spec §4.9's single-flight policy.
func (r *Reconciler) tick(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer r.running.Store(false)

	codebases := r.cfg.Registry.AllIndexed()
	if len(codebases) == 0 {
		r.stopped.Store(true)
		r.cfg.Logger.Debug("reconciler: no indexed codebases, stopping until next registration")
		return
	}

	runID := uuid.NewString()
	r.cfg.Logger.Debug("reconciler: run started", "run_id", runID, "codebases", len(codebases))

	for _, cb := range codebases {
		r.reconcileOne(ctx, runID, cb)
	}
}

// resolverFor returns the ignore Resolver to use for root, reusing a
// cached instance across ticks and invalidating it only when root's
// .gitignore files have changed since the last reconcile pass (spec §4.9's
// differential-reconciliation intent) rather than rebuilding on every tick.
func (r *Reconciler) resolverFor(root string) *ignore.Resolver {
	if r.ignoreCache == nil {
		resolver := ignore.Resolve(root, r.cfg.GlobalIgnoreFile, r.cfg.Logger)
		resolver.Add(r.cfg.IgnorePatterns)
		return resolver
	}

	_, seenBefore := r.gitignoreSum[root]
	firstUse := !seenBefore
	if hash, err := ignore.ComputeGitignoreHash(root); err == nil {
		if prev, ok := r.gitignoreSum[root]; ok && prev != hash {
			r.ignoreCache.Invalidate(root)
			firstUse = true
		}
		r.gitignoreSum[root] = hash
	}

	resolver := r.ignoreCache.Get(root)
	if firstUse {
		resolver.Add(r.cfg.IgnorePatterns)
	}
	return resolver
}

func (r *Reconciler) reconcileOne(ctx context.Context, runID string, cb *registry.Codebase) {
	logger := r.cfg.Logger.With("run_id", runID, "root", cb.Root)

	if _, err := os.Stat(cb.Root); err != nil {
		logger.Warn("reconciler: root no longer exists on disk, skipping", "error", err)
		return
	}

	resolver := r.resolverFor(cb.Root)
	synchronizer, err := snapshot.InitializeWithResolver(r.cfg.DataDir, cb.Root, resolver, r.cfg.Logger)
	if err != nil {
		logger.Warn("reconciler: failed to load snapshot", "error", err)
		return
	}

	result, err := r.cfg.Pipeline.ReindexByChange(ctx, synchronizer, pipeline.IndexOptions{
		Root:           cb.Root,
		CollectionName: cb.CollectionName,
		Hybrid:         cb.Hybrid,
	})
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			logger.Warn("reconciler: collection missing, clearing snapshot so next run reindexes from scratch")
			if delErr := snapshot.DeleteSnapshot(r.cfg.DataDir, cb.Root); delErr != nil {
				logger.Warn("reconciler: failed to delete stale snapshot", "error", delErr)
			}
			return
		}
		logger.Warn("reconciler: reindex_by_change failed, isolating error", "error", err)
		return
	}

	if result.Added > 0 || result.Removed > 0 || result.Modified > 0 {
		logger.Info("reconciler: reconciled changes",
			"added", result.Added, "removed", result.Removed, "modified", result.Modified)
	}
}
