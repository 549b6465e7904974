package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/codex-index/internal/chunk"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/kraklabs/codex-index/internal/ignore"
	"github.com/kraklabs/codex-index/internal/scanner"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// Pipeline runs index_codebase and reindex_by_change against a fixed set of
// collaborators (spec §4.7). It holds no per-codebase state between runs;
// every run is parameterized entirely through IndexOptions.
type Pipeline struct {
	deps Dependencies
	perf config.PerformanceConfig
}

// New builds a Pipeline over deps, using perf as the baseline resource
// configuration (already resolved from defaults/config-file/env by the
// caller, per spec §6's precedence order).
func New(deps Dependencies, perf config.PerformanceConfig) *Pipeline {
	return &Pipeline{deps: deps, perf: perf}
}

// IndexCodebase implements spec §4.7's public operation. Preconditions:
// Root must already be a canonical path C1 resolved; a pre-existing
// collection for opts.CollectionName requires opts.Force; check_collection_
// limit must return true before any collection is created.
func (p *Pipeline) IndexCodebase(ctx context.Context, opts IndexOptions) (IndexResult, error) {
	exists, err := p.deps.Store.HasCollection(ctx, opts.CollectionName)
	if err != nil {
		return IndexResult{}, errs.StoreError(errs.StoreConnect, "check collection existence", err)
	}
	if exists && !opts.Force {
		return IndexResult{}, errs.AlreadyIndexed(opts.Root)
	}
	if exists && opts.Force {
		if err := p.deps.Store.DropCollection(ctx, opts.CollectionName); err != nil {
			return IndexResult{}, errs.StoreError(errs.StoreSchema, "drop collection for forced reindex", err)
		}
	}

	ok, err := p.deps.Store.CheckCollectionLimit(ctx)
	if err != nil {
		return IndexResult{}, errs.StoreError(errs.StoreConnect, "check collection limit", err)
	}
	if !ok {
		return IndexResult{}, errs.CollectionLimitReached("vector store has reached its collection ceiling")
	}

	dim := p.deps.Embedder.Dimension()
	if dim <= 0 {
		dim, err = p.deps.Embedder.DetectDimension(ctx)
		if err != nil {
			return IndexResult{}, errs.EmbeddingError(errs.EmbeddingTransport, "detect embedding dimension", err)
		}
	}
	if opts.Hybrid {
		err = p.deps.Store.CreateHybridCollection(ctx, opts.CollectionName, dim, opts.Root)
	} else {
		err = p.deps.Store.CreateCollection(ctx, opts.CollectionName, dim, opts.Root)
	}
	if err != nil {
		return IndexResult{}, errs.StoreError(errs.StoreSchema, "create collection", err)
	}

	return p.run(ctx, opts)
}

// run executes steps 1-10 of spec §4.7's behavior outline against an
// already-provisioned collection. It is also the re-entry point
// reindex_by_change uses (via opts.Subset) for its added/modified set.
func (p *Pipeline) run(ctx context.Context, opts IndexOptions) (IndexResult, error) {
	resolver := ignore.Resolve(opts.Root, opts.GlobalIgnoreFile, p.deps.Logger)
	resolver.Add(opts.IgnorePatterns)

	// Step 1: scan.
	files, err := p.listFiles(ctx, opts, resolver)
	if err != nil {
		return IndexResult{}, fmt.Errorf("pipeline: scan %s: %w", opts.Root, err)
	}

	// Step 2: zero files.
	if len(files) == 0 {
		p.reportProgress(opts.Progress, newMonotonicPercent(), 100, "No files to index")
		return IndexResult{Status: StatusCompleted}, nil
	}

	// Step 3: batch configuration.
	providerMaxBatch := 0
	if c, ok := p.deps.Embedder.(interface{ MaxBatchSize() int }); ok {
		providerMaxBatch = c.MaxBatchSize()
	}
	bc := computeBatchConfig(p.perf, 0, providerMaxBatch, p.deps.Embedder.ProviderName())

	mp := newMonotonicPercent()
	p.reportProgress(opts.Progress, mp, ScanProgressBudget, "Scanning complete")

	return p.pipelineRun(ctx, opts, files, bc, mp)
}

// pipelineRun drives steps 4-10: file-level concurrent splitting feeding a
// single chunk-buffering goroutine, which freezes pending batches into a
// two-stage overlapped embed (Stage A) / insert (Stage B) pipeline.
func (p *Pipeline) pipelineRun(ctx context.Context, opts IndexOptions, files []scanner.FileInfo, bc batchConfig, mp *monotonicPercent) (IndexResult, error) {
	totalChunks := int64(0)
	limitHit := int32(0)
	filesDone := int64(0)
	filesTotal := int64(len(files))

	fileCh := make(chan scanner.FileInfo)
	chunksCh := make(chan fileChunks, bc.fileConcurrency)
	batchCh := make(chan pendingBatch, bc.apiConcurrency)
	insertCh := make(chan embeddedBatch, 2*bc.apiConcurrency)

	g, gctx := errgroup.WithContext(ctx)

	// File-dispatch goroutine: feeds fileCh in scan order, stopping early
	// once the chunk ceiling is hit mid-run (step 7).
	g.Go(func() error {
		defer close(fileCh)
		for _, f := range files {
			if atomic.LoadInt32(&limitHit) != 0 {
				return nil
			}
			select {
			case fileCh <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Step 4: file-level concurrent processing.
	var splitWG sync.WaitGroup
	splitWG.Add(bc.fileConcurrency)
	for i := 0; i < bc.fileConcurrency; i++ {
		go func() {
			defer splitWG.Done()
			for f := range fileCh {
				cs, err := p.splitFile(gctx, f)
				done := atomic.AddInt64(&filesDone, 1)
				percent := ScanProgressBudget + (100-ScanProgressBudget)*int(done)/int(filesTotal)
				p.reportProgress(opts.Progress, mp, percent, "Indexing files")
				if err != nil {
					p.deps.Logger.Warn("pipeline: split failed, skipping file", "path", f.Path, "error", err)
					continue
				}
				if len(cs) == 0 {
					continue
				}
				select {
				case chunksCh <- fileChunks{chunks: cs}:
				case <-gctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		splitWG.Wait()
		close(chunksCh)
	}()

	// Step 5: chunk buffering into pending batches, with adaptive
	// memory-pressure thresholds (single goroutine — the buffer has no
	// concurrent writers).
	g.Go(func() error {
		defer close(batchCh)
		var buf []*chunk.Chunk
		flush := func() error {
			if len(buf) == 0 {
				return nil
			}
			select {
			case batchCh <- pendingBatch{chunks: buf}:
			case <-gctx.Done():
				return gctx.Err()
			}
			buf = nil
			return nil
		}

		for fc := range chunksCh {
			if atomic.LoadInt32(&limitHit) != 0 {
				continue
			}
			chunks, hit := trimToLimit(fc.chunks, atomic.LoadInt64(&totalChunks))
			if hit {
				atomic.StoreInt32(&limitHit, 1)
			}
			if len(chunks) == 0 {
				continue
			}
			buf = append(buf, chunks...)
			atomic.AddInt64(&totalChunks, int64(len(chunks)))

			threshold := bc.embeddingBatchSize
			pressure := memoryPressure(bc.memoryLimitMB)
			if pressure > 0.80 {
				threshold = threshold / 2
				if threshold < 1 {
					threshold = 1
				}
			}
			if len(buf) >= threshold || pressure > 0.90 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	// Step 6: Stage A (embed, bounded to apiConcurrency in flight) feeding
	// Stage B (insert, bounded queue of 2 x apiConcurrency) — both stages
	// run concurrently with each other and with later Stage A work.
	stageASem := semaphore.NewWeighted(int64(bc.apiConcurrency))
	var stageAWG sync.WaitGroup

	g.Go(func() error {
		defer func() {
			stageAWG.Wait()
			close(insertCh)
		}()
		for batch := range batchCh {
			batch := batch
			if err := stageASem.Acquire(gctx, 1); err != nil {
				return err
			}
			stageAWG.Add(1)
			g.Go(func() error {
				defer stageASem.Release(1)
				defer stageAWG.Done()
				eb, err := p.embedBatch(gctx, batch)
				if err != nil {
					p.deps.Logger.Warn("pipeline: batch embedding failed after retries, dropping batch", "error", err, "chunks", len(batch.chunks))
					return nil
				}
				select {
				case insertCh <- eb:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			})
		}
		return nil
	})

	var indexedFiles int64
	pathSeen := make(map[string]struct{})
	var pathMu sync.Mutex
	markIndexed := func(docs []vectorstore.Doc) {
		pathMu.Lock()
		defer pathMu.Unlock()
		for _, d := range docs {
			if rp, ok := d.Fields["relative_path"]; ok {
				if _, seen := pathSeen[rp]; !seen {
					pathSeen[rp] = struct{}{}
					indexedFiles++
				}
			}
		}
	}

	g.Go(func() error {
		for eb := range insertCh {
			if err := p.insertBatch(gctx, opts.CollectionName, opts.Hybrid, eb.docs); err != nil {
				return errs.StoreError(errs.StoreInsert, "insert batch", err)
			}
			markIndexed(eb.docs)
			maybeGCHint(bc.memoryLimitMB)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return IndexResult{}, errs.IndexCancelled(opts.Root, mp.last())
		}
		return IndexResult{}, err
	}

	status := StatusCompleted
	if atomic.LoadInt32(&limitHit) != 0 {
		status = StatusLimitReached
	}
	p.reportProgress(opts.Progress, mp, 100, "Indexing complete")

	return IndexResult{
		IndexedFiles: int(indexedFiles),
		TotalChunks:  int(atomic.LoadInt64(&totalChunks)),
		Status:       status,
	}, nil
}

func (p *Pipeline) listFiles(ctx context.Context, opts IndexOptions, resolver *ignore.Resolver) ([]scanner.FileInfo, error) {
	results, err := p.deps.Scanner.Walk(ctx, scanner.Options{
		Root:       opts.Root,
		Extensions: opts.Extensions,
		Ignore:     resolver,
		Sorted:     true,
	})
	if err != nil {
		return nil, err
	}

	subset := toSet(opts.Subset)
	var files []scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			p.deps.Logger.Warn("pipeline: walk error, skipping", "error", r.Error)
			continue
		}
		if subset != nil {
			if _, ok := subset[r.File.Path]; !ok {
				continue
			}
		}
		files = append(files, *r.File)
	}
	return files, nil
}

func toSet(paths []string) map[string]struct{} {
	if paths == nil {
		return nil
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func (p *Pipeline) splitFile(ctx context.Context, f scanner.FileInfo) ([]*chunk.Chunk, error) {
	content, err := readFileBounded(f.AbsPath)
	if err != nil {
		return nil, err
	}
	cs, err := p.deps.Splitter.Split(ctx, content, f.Language, f.Path)
	if err != nil {
		return nil, errs.SplitError(f.Path, err)
	}
	return cs, nil
}

func (p *Pipeline) embedBatch(ctx context.Context, batch pendingBatch) (embeddedBatch, error) {
	texts := make([]string, len(batch.chunks))
	for i, c := range batch.chunks {
		texts[i] = c.Content
	}
	vecs, err := p.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return embeddedBatch{}, err
	}

	docs := make([]vectorstore.Doc, len(batch.chunks))
	for i, c := range batch.chunks {
		docs[i] = vectorstore.Doc{
			ID:      c.ID,
			Content: c.Content,
			Vector:  vecs[i],
			Fields: map[string]string{
				"relative_path":  c.FilePath,
				"start_line":     strconv.Itoa(c.StartLine),
				"end_line":       strconv.Itoa(c.EndLine),
				"language":       c.Language,
				"file_extension": extensionOf(c.FilePath),
			},
		}
	}
	return embeddedBatch{docs: docs}, nil
}

// insertBatch is a single insert attempt. Retry is confined to the
// embedding adapter (spec §9 design note); an insert failure here aborts
// the run rather than being retried at the pipeline level.
func (p *Pipeline) insertBatch(ctx context.Context, collection string, hybrid bool, docs []vectorstore.Doc) error {
	if hybrid {
		return p.deps.Store.InsertHybridBatched(ctx, collection, docs, len(docs))
	}
	return p.deps.Store.Insert(ctx, collection, docs)
}

// reportProgress is the single logical call site spec §4.7 step 9 and §5
// require for monotonicity: mp enforces percent never regresses even when
// multiple goroutines race to report it.
func (p *Pipeline) reportProgress(cb ProgressFunc, mp *monotonicPercent, percent int, phase string) {
	if cb == nil {
		return
	}
	if mp.advance(percent) {
		cb(percent, phase)
	}
}
