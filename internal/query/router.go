package query

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kraklabs/codex-index/internal/embedding"
	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/kraklabs/codex-index/internal/registry"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// Router implements semantic_search's resolution and dispatch logic.
type Router struct {
	registry *registry.Registry
	embedder embedding.Embedder
	store    vectorstore.Store
	hybrid   bool
}

// New builds a Router. defaultHybrid mirrors config.SearchConfig.HybridMode
// and is used whenever a Request does not set Hybrid explicitly.
func New(reg *registry.Registry, embedder embedding.Embedder, store vectorstore.Store, defaultHybrid bool) *Router {
	return &Router{registry: reg, embedder: embedder, store: store, hybrid: defaultHybrid}
}

// Search implements semantic_search per spec §4.10.
func (r *Router) Search(ctx context.Context, req Request) ([]Hit, error) {
	canonical, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, errs.PathError(errs.CodeInternal, req.Path, err)
	}
	canonical = filepath.ToSlash(canonical)

	cb := r.registry.FindContainingIndex(canonical)
	if cb == nil {
		return nil, errs.NotIndexed(canonical)
	}
	if cb.State != registry.StateIndexed {
		return nil, errs.NotIndexed(canonical)
	}

	exists, err := r.store.HasCollection(ctx, cb.CollectionName)
	if err != nil {
		return nil, errs.StoreError(errs.StoreQuery, "check collection existence", err)
	}
	if !exists {
		return nil, errs.CollectionMissing(cb.CollectionName)
	}

	hybrid := r.hybrid
	if req.Hybrid != nil {
		hybrid = *req.Hybrid
	}

	threshold := DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	var hits []vectorstore.Hit
	if hybrid {
		hits, err = r.searchHybrid(ctx, cb.CollectionName, req.Query, topK, req.FilterExpr)
	} else {
		hits, err = r.searchDense(ctx, cb.CollectionName, req.Query, topK, threshold, req.FilterExpr)
	}
	if err != nil {
		return nil, err
	}

	if hybrid {
		hits = filterByThreshold(hits, threshold)
	}

	if cb.Root != canonical {
		hits = filterBySubtree(hits, cb.Root, canonical)
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (r *Router) searchDense(ctx context.Context, collection, query string, topK int, threshold float64, filterExpr string) ([]vectorstore.Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, "embed query", err)
	}
	hits, err := r.store.Search(ctx, collection, vec, vectorstore.SearchOptions{
		TopK:       topK,
		Threshold:  threshold,
		FilterExpr: filterExpr,
	})
	if err != nil {
		return nil, errs.StoreError(errs.StoreSearch, "dense search", err)
	}
	return hits, nil
}

func (r *Router) searchHybrid(ctx context.Context, collection, query string, topK int, filterExpr string) ([]vectorstore.Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, "embed query", err)
	}
	hits, err := r.store.HybridSearch(ctx, collection,
		vectorstore.DenseRequest{Vector: vec, TopK: topK},
		vectorstore.SparseRequest{Query: query, TopK: topK},
		vectorstore.HybridOptions{Limit: topK, FilterExpr: filterExpr})
	if err != nil {
		return nil, errs.StoreError(errs.StoreSearch, "hybrid search", err)
	}
	return hits, nil
}

func filterByThreshold(hits []vectorstore.Hit, threshold float64) []vectorstore.Hit {
	if threshold <= 0 {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

// filterBySubtree keeps only hits whose relative_path joined with root lies
// under canonicalPath, per spec §4.10 step 4.
func filterBySubtree(hits []vectorstore.Hit, root, canonicalPath string) []vectorstore.Hit {
	out := hits[:0]
	for _, h := range hits {
		rel := h.Doc.Fields["relative_path"]
		abs := filepath.ToSlash(filepath.Join(root, rel))
		if abs == canonicalPath || strings.HasPrefix(abs, canonicalPath+"/") {
			out = append(out, h)
		}
	}
	return out
}
