package app

import (
	"context"
	"fmt"

	"github.com/kraklabs/codex-index/internal/coordination"
	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/kraklabs/codex-index/internal/pipeline"
	"github.com/kraklabs/codex-index/internal/query"
	"github.com/kraklabs/codex-index/internal/registry"
	"github.com/kraklabs/codex-index/internal/snapshot"
)

// IndexCodebaseOptions parameterizes index_codebase beyond the bare path,
// per spec §6's input list.
type IndexCodebaseOptions struct {
	Force                bool
	SplitterHint         string
	CustomExtensions     []string
	CustomIgnorePatterns []string

	// OnProgress, if set, is invoked alongside the registry's own percent
	// tracking so a CLI caller can drive a progress renderer.
	OnProgress func(percent int, phase string)
}

// IndexCodebaseResult is spec §6's index_codebase result shape.
type IndexCodebaseResult struct {
	IndexedFiles int
	TotalChunks  int
	Status       string
}

// IndexCodebase implements spec §6's index_codebase: canonicalize path,
// take the cross-process index lock (C11), register (C8), run the
// pipeline (C7) against a fresh snapshot (C4), and record the outcome back
// into the registry.
func (a *App) IndexCodebase(ctx context.Context, path string, opts IndexCodebaseOptions) (IndexCodebaseResult, error) {
	root, err := Canonicalize(path)
	if err != nil {
		return IndexCodebaseResult{}, err
	}

	if err := a.Lock.Acquire(ctx, coordination.Options{Timeout: a.LockTimeout}); err != nil {
		return IndexCodebaseResult{}, fmt.Errorf("app: acquire index lock: %w", err)
	}
	defer a.Lock.Release()

	hybrid := a.Config.Search.HybridMode
	if err := a.Registry.Register(root, hybrid); err != nil {
		return IndexCodebaseResult{}, err
	}

	extensions := opts.CustomExtensions
	if len(extensions) == 0 {
		extensions = a.Config.Paths.CustomExtensions
	}
	ignorePatterns := append(append([]string{}, a.Config.Paths.CustomIgnorePatterns...), opts.CustomIgnorePatterns...)

	synchronizer, err := snapshot.Initialize(a.dataDir, root, ignorePatterns, "", a.Logger)
	if err != nil {
		_ = a.Registry.SetIndexFailed(root, 0, err)
		return IndexCodebaseResult{}, fmt.Errorf("app: initialize snapshot: %w", err)
	}

	if err := a.Registry.SetIndexing(root, 0); err != nil {
		return IndexCodebaseResult{}, err
	}

	collection := registry.CollectionNameFor(root, hybrid)
	result, err := a.Pipeline.IndexCodebase(ctx, pipeline.IndexOptions{
		Root:             root,
		CollectionName:   collection,
		Hybrid:           hybrid,
		Extensions:       extensions,
		IgnorePatterns:   ignorePatterns,
		Force:            opts.Force,
		Progress: func(percent int, phase string) {
			_ = a.Registry.SetIndexing(root, percent)
			if opts.OnProgress != nil {
				opts.OnProgress(percent, phase)
			}
		},
	})
	if err != nil {
		lastPercent := 0
		if info := a.Registry.Info(root); info != nil {
			lastPercent = info.Percent
		}
		_ = a.Registry.SetIndexFailed(root, lastPercent, err)
		return IndexCodebaseResult{}, err
	}

	if err := synchronizer.Commit(); err != nil {
		a.Logger.Warn("app: commit snapshot after index", "root", root, "error", err)
	}
	if f, ok := a.Store.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			a.Logger.Warn("app: flush vector store after index", "root", root, "error", err)
		}
	}

	if err := a.Registry.SetIndexed(root, result.IndexedFiles, result.TotalChunks); err != nil {
		return IndexCodebaseResult{}, err
	}
	a.Recon.Notify()

	return IndexCodebaseResult{
		IndexedFiles: result.IndexedFiles,
		TotalChunks:  result.TotalChunks,
		Status:       result.Status,
	}, nil
}

// SearchCodeOptions parameterizes search_code beyond path/query, per spec
// §6's input list.
type SearchCodeOptions struct {
	Limit           int
	ExtensionFilter []string
	Threshold       *float64
}

// SearchHit is spec §6's search_code per-result shape.
type SearchHit struct {
	RelativePath string
	StartLine    int
	EndLine      int
	Language     string
	Score        float64
	Content      string
}

// SearchCode implements spec §6's search_code via the query router (C10),
// applying the extension filter as a FilterExpr and capping Limit at 50.
func (a *App) SearchCode(ctx context.Context, path, queryText string, opts SearchCodeOptions) ([]SearchHit, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	filterExpr := ""
	if len(opts.ExtensionFilter) > 0 {
		filterExpr = extensionFilterExpr(opts.ExtensionFilter)
	}

	hits, err := a.Router.Search(ctx, query.Request{
		Path:       path,
		Query:      queryText,
		TopK:       limit,
		Threshold:  opts.Threshold,
		FilterExpr: filterExpr,
	})
	if err != nil {
		return nil, err
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchHit{
			RelativePath: h.Doc.Fields["relative_path"],
			StartLine:    intField(h.Doc.Fields, "start_line"),
			EndLine:      intField(h.Doc.Fields, "end_line"),
			Language:     h.Doc.Fields["language"],
			Score:        h.Score,
			Content:      h.Doc.Content,
		})
	}
	return out, nil
}

// ClearIndex implements spec §6's clear_index: drop the collection, the
// on-disk snapshot, and the registry entry, in that order. The registry
// entry is removed last, so a crash part-way through leaves it in place
// while its collection is already gone.
func (a *App) ClearIndex(ctx context.Context, path string) error {
	root, err := Canonicalize(path)
	if err != nil {
		return err
	}

	cb := a.Registry.Info(root)
	if cb == nil {
		return errs.NotIndexed(root)
	}

	if err := a.Store.DropCollection(ctx, cb.CollectionName); err != nil {
		return errs.StoreError(errs.StoreSchema, "drop collection for clear_index", err)
	}
	if err := snapshot.DeleteSnapshot(a.dataDir, root); err != nil {
		a.Logger.Warn("app: delete snapshot on clear_index", "root", root, "error", err)
	}
	return a.Registry.Remove(root)
}

// IndexingStatus is get_indexing_status's per-codebase report shape.
type IndexingStatus struct {
	Root         string
	State        string
	Percent      int
	IndexedFiles int
	TotalChunks  int
	Error        string
}

// GetIndexingStatus implements spec §6's get_indexing_status: a single
// codebase's status if path is given, or every known codebase otherwise.
func (a *App) GetIndexingStatus(path string) ([]IndexingStatus, error) {
	if path != "" {
		root, err := Canonicalize(path)
		if err != nil {
			return nil, err
		}
		cb := a.Registry.Info(root)
		if cb == nil {
			return nil, errs.NotIndexed(root)
		}
		return []IndexingStatus{statusFrom(cb)}, nil
	}

	var out []IndexingStatus
	for _, cb := range a.Registry.All() {
		out = append(out, statusFrom(cb))
	}
	return out, nil
}

func statusFrom(cb *registry.Codebase) IndexingStatus {
	return IndexingStatus{
		Root:         cb.Root,
		State:        string(cb.State),
		Percent:      cb.Percent,
		IndexedFiles: cb.IndexedFiles,
		TotalChunks:  cb.TotalChunks,
		Error:        cb.Error,
	}
}

func intField(fields map[string]string, key string) int {
	var v int
	_, _ = fmt.Sscanf(fields[key], "%d", &v)
	return v
}

func extensionFilterExpr(extensions []string) string {
	expr := ""
	for i, ext := range extensions {
		if i > 0 {
			expr += " or "
		}
		expr += fmt.Sprintf(`language == %q`, ext)
	}
	return expr
}
