package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxCollections bounds the number of collections a single data
// directory may hold. Unlike a hosted vector database's account-level
// ceiling, this adapter runs entirely on local disk, so the "ceiling" spec
// §4.6 names is a configurable local guard rather than a remote quota.
const DefaultMaxCollections = 200

// Manager implements Store over per-collection HNSW + Bleve indexes backed
// by a SQLite catalog, one process-wide Manager fanning out into N named
// collections the way spec §4.6 requires.
type Manager struct {
	mu             sync.RWMutex
	dataDir        string
	maxCollections int
	catalog        *metadataStore
	documents      *documentStore
	collections    map[string]*collectionState
}

type collectionState struct {
	meta   collectionMeta
	dense  *denseIndex
	sparse *sparseIndex // nil unless meta.Hybrid
}

var _ Store = (*Manager)(nil)

// NewManager opens (or creates) the catalog at dataDir/catalog.db and
// returns a Manager with no collections loaded into memory yet — individual
// collections are loaded from disk lazily on first access.
func NewManager(dataDir string, maxCollections int) (*Manager, error) {
	if maxCollections <= 0 {
		maxCollections = DefaultMaxCollections
	}
	catalogPath := filepath.Join(dataDir, "catalog.db")
	if dataDir == "" {
		catalogPath = ""
	}

	catalog, err := newMetadataStore(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	documents, err := newDocumentStore(catalog.db)
	if err != nil {
		_ = catalog.close()
		return nil, fmt.Errorf("open document store: %w", err)
	}

	return &Manager{
		dataDir:        dataDir,
		maxCollections: maxCollections,
		catalog:        catalog,
		documents:      documents,
		collections:    make(map[string]*collectionState),
	}, nil
}

func (m *Manager) densePath(name string) string  { return filepath.Join(m.dataDir, name+".hnsw") }
func (m *Manager) sparsePath(name string) string { return filepath.Join(m.dataDir, name+".bm25") }

// ensureLoaded returns the in-memory state for an existing collection,
// loading its dense/sparse indexes from disk on first access.
func (m *Manager) ensureLoaded(name string) (*collectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.collections[name]; ok {
		return state, nil
	}

	meta, err := m.catalog.get(name)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if meta == nil {
		return nil, ErrCollectionNotFound
	}

	dense := newDenseIndex(defaultDenseConfig(meta.Dimensions))
	if m.dataDir != "" {
		if err := dense.load(m.densePath(name)); err != nil {
			// A collection with no inserts yet has no persisted graph file;
			// treat that as an empty index rather than an error.
			dense = newDenseIndex(defaultDenseConfig(meta.Dimensions))
		}
	}

	var sparse *sparseIndex
	if meta.Hybrid {
		path := ""
		if m.dataDir != "" {
			path = m.sparsePath(name)
		}
		sparse, err = newSparseIndex(path)
		if err != nil {
			return nil, fmt.Errorf("load sparse index: %w", err)
		}
	}

	state := &collectionState{meta: *meta, dense: dense, sparse: sparse}
	m.collections[name] = state
	return state, nil
}

func (m *Manager) HasCollection(ctx context.Context, name string) (bool, error) {
	meta, err := m.catalog.get(name)
	if err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	return meta != nil, nil
}

func (m *Manager) createCollection(ctx context.Context, name string, dim int, description string, hybrid bool) error {
	ok, err := m.CheckCollectionLimit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCollectionLimitReached
	}

	existing, err := m.catalog.get(name)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	if existing != nil {
		return ErrCollectionExists
	}

	meta := collectionMeta{Name: name, Dimensions: dim, Hybrid: hybrid, Description: description}
	meta.CreatedAt = time.Now()
	if err := m.catalog.create(meta); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	m.mu.Lock()
	state := &collectionState{meta: meta, dense: newDenseIndex(defaultDenseConfig(dim))}
	if hybrid {
		path := ""
		if m.dataDir != "" {
			path = m.sparsePath(name)
		}
		sparse, err := newSparseIndex(path)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("create sparse index: %w", err)
		}
		state.sparse = sparse
	}
	m.collections[name] = state
	m.mu.Unlock()

	return nil
}

func (m *Manager) CreateCollection(ctx context.Context, name string, dim int, description string) error {
	return m.createCollection(ctx, name, dim, description, false)
}

func (m *Manager) CreateHybridCollection(ctx context.Context, name string, dim int, description string) error {
	return m.createCollection(ctx, name, dim, description, true)
}

func (m *Manager) DropCollection(ctx context.Context, name string) error {
	if err := m.catalog.drop(name); err != nil {
		return fmt.Errorf("drop from catalog: %w", err)
	}
	if err := m.documents.deleteCollection(name); err != nil {
		return fmt.Errorf("drop documents: %w", err)
	}

	m.mu.Lock()
	state, loaded := m.collections[name]
	delete(m.collections, name)
	m.mu.Unlock()

	if loaded && state.sparse != nil {
		_ = state.sparse.close()
	}
	return nil
}

func (m *Manager) ListCollections(ctx context.Context) ([]string, error) {
	return m.catalog.list()
}

func (m *Manager) CheckCollectionLimit(ctx context.Context) (bool, error) {
	n, err := m.catalog.count()
	if err != nil {
		return false, fmt.Errorf("count collections: %w", err)
	}
	return n < m.maxCollections, nil
}

func (m *Manager) Insert(ctx context.Context, name string, docs []Doc) error {
	state, err := m.ensureLoaded(name)
	if err != nil {
		return err
	}

	ids := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		vectors[i] = d.Vector
	}

	if err := state.dense.add(ids, vectors); err != nil {
		return fmt.Errorf("dense insert: %w", err)
	}
	return m.documents.upsert(name, docs)
}

func (m *Manager) InsertHybrid(ctx context.Context, name string, docs []Doc) error {
	state, err := m.ensureLoaded(name)
	if err != nil {
		return err
	}
	if state.sparse == nil {
		return fmt.Errorf("collection %q is not hybrid", name)
	}

	ids := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		vectors[i] = d.Vector
	}

	if err := state.dense.add(ids, vectors); err != nil {
		return fmt.Errorf("dense insert: %w", err)
	}
	if err := state.sparse.indexDocs(ctx, docs); err != nil {
		return fmt.Errorf("sparse insert: %w", err)
	}
	return m.documents.upsert(name, docs)
}

func (m *Manager) InsertHybridBatched(ctx context.Context, name string, docs []Doc, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(docs)
	}
	if batchSize <= 0 {
		return nil
	}
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := m.InsertHybrid(ctx, name, docs[start:end]); err != nil {
			return fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (m *Manager) Query(ctx context.Context, name, filterExpr string, outputFields []string, limit int) ([]Doc, error) {
	if _, err := m.ensureLoaded(name); err != nil {
		return nil, err
	}
	docs, err := m.documents.list(name, filterExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	if len(outputFields) == 0 {
		return docs, nil
	}
	return projectFields(docs, outputFields), nil
}

func (m *Manager) Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]Hit, error) {
	state, err := m.ensureLoaded(name)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	hits, err := state.dense.search(vector, topK)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	results := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if opts.Threshold > 0 && float64(h.Score) < opts.Threshold {
			continue
		}
		doc, ok, err := m.documents.get(name, h.ID)
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", h.ID, err)
		}
		if !ok || !matchesFilter(doc, opts.FilterExpr) {
			continue
		}
		results = append(results, Hit{Doc: doc, Score: float64(h.Score)})
	}
	return results, nil
}

// HybridSearch runs the dense and sparse legs independently, then fuses the
// two ranked lists with Reciprocal Rank Fusion, per spec §4.6:
// score(d) = sum(1 / (k + rank_i(d))), ties broken by dense rank first.
func (m *Manager) HybridSearch(ctx context.Context, name string, dense DenseRequest, sparse SparseRequest, opts HybridOptions) ([]Hit, error) {
	state, err := m.ensureLoaded(name)
	if err != nil {
		return nil, err
	}
	if state.sparse == nil {
		return nil, fmt.Errorf("collection %q is not hybrid", name)
	}

	denseTopK := dense.TopK
	if denseTopK <= 0 {
		denseTopK = 20
	}
	sparseTopK := sparse.TopK
	if sparseTopK <= 0 {
		sparseTopK = 20
	}

	denseHits, err := state.dense.search(dense.Vector, denseTopK)
	if err != nil {
		return nil, fmt.Errorf("dense leg: %w", err)
	}
	sparseHits, err := state.sparse.search(ctx, sparse.Query, sparseTopK)
	if err != nil {
		return nil, fmt.Errorf("sparse leg: %w", err)
	}

	k := opts.RRFConstant
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fused struct {
		id        string
		score     float64
		denseRank int // 0 = not present
	}
	scores := make(map[string]*fused)

	for rank, h := range denseHits {
		scores[h.ID] = &fused{id: h.ID, score: 1.0 / float64(k+rank+1), denseRank: rank + 1}
	}
	for rank, h := range sparseHits {
		if existing, ok := scores[h.ID]; ok {
			existing.score += 1.0 / float64(k+rank+1)
		} else {
			scores[h.ID] = &fused{id: h.ID, score: 1.0 / float64(k+rank+1)}
		}
	}

	ordered := make([]*fused, 0, len(scores))
	for _, f := range scores {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		// ties broken by dense rank first, per spec §4.6
		switch {
		case ordered[i].denseRank == 0 && ordered[j].denseRank == 0:
			return ordered[i].id < ordered[j].id
		case ordered[i].denseRank == 0:
			return false
		case ordered[j].denseRank == 0:
			return true
		default:
			return ordered[i].denseRank < ordered[j].denseRank
		}
	})

	limit := opts.Limit
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}

	results := make([]Hit, 0, limit)
	for _, f := range ordered[:limit] {
		doc, ok, err := m.documents.get(name, f.id)
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", f.id, err)
		}
		if !ok || !matchesFilter(doc, opts.FilterExpr) {
			continue
		}
		results = append(results, Hit{Doc: doc, Score: f.score})
	}
	return results, nil
}

func (m *Manager) Delete(ctx context.Context, name string, ids []string) error {
	state, err := m.ensureLoaded(name)
	if err != nil {
		return err
	}
	state.dense.delete(ids)
	if state.sparse != nil {
		if err := state.sparse.delete(ids); err != nil {
			return fmt.Errorf("sparse delete: %w", err)
		}
	}
	return m.documents.delete(name, ids)
}

// Flush persists every loaded collection's dense index to disk.
// App.IndexCodebase invokes it after a successful pipeline run; Close does
// not save, so dense inserts made since the last Flush live only in memory.
func (m *Manager) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dataDir == "" {
		return nil
	}
	for name, state := range m.collections {
		if err := state.dense.save(m.densePath(name)); err != nil {
			return fmt.Errorf("save collection %q: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range m.collections {
		if state.sparse != nil {
			_ = state.sparse.close()
		}
	}
	return m.catalog.close()
}

func projectFields(docs []Doc, fields []string) []Doc {
	want := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	out := make([]Doc, len(docs))
	for i, d := range docs {
		projected := Doc{ID: d.ID, Fields: make(map[string]string)}
		if _, ok := want["content"]; ok {
			projected.Content = d.Content
		}
		for k, v := range d.Fields {
			if _, ok := want[k]; ok {
				projected.Fields[k] = v
			}
		}
		out[i] = projected
	}
	return out
}

// matchesFilter evaluates the same mini filter language documentStore.list
// uses, against an already-loaded Doc — used by Search/HybridSearch, which
// look documents up by ID rather than scanning the document table.
func matchesFilter(doc Doc, expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	field, op, value, ok := parseFilterExpr(expr)
	if !ok {
		return true
	}
	actual, exists := doc.Fields[field]
	if !exists {
		return false
	}
	switch op {
	case "=":
		return actual == value
	case "!=":
		return actual != value
	case "^=":
		return strings.HasPrefix(actual, value)
	default:
		return true
	}
}
