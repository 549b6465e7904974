// Package vectorstore implements the Vector Store Adapter (C6): collection
// lifecycle, dense (HNSW) and sparse (BM25) indexing, and RRF hybrid search,
// per spec §4.6.
package vectorstore

import (
	"context"
	"fmt"
)

// Doc is a single insertable/returned document: a chunk's ID, its content
// (used to derive the sparse representation on hybrid insert), its dense
// embedding, and arbitrary scalar fields used for query filtering.
type Doc struct {
	ID      string
	Content string
	Vector  []float32
	Fields  map[string]string
}

// Hit is a single scored result from search/hybrid_search.
type Hit struct {
	Doc   Doc
	Score float64
}

// DenseRequest parameterizes the dense leg of a hybrid_search call.
type DenseRequest struct {
	Vector []float32
	TopK   int
}

// SparseRequest parameterizes the sparse (BM25) leg of a hybrid_search call.
type SparseRequest struct {
	Query string
	TopK  int
}

// HybridOptions configures RRF reranking and the result contract of
// hybrid_search, per spec §4.6.
type HybridOptions struct {
	RRFConstant int // k in RRF(k); 0 uses DefaultRRFConstant
	Limit       int
	FilterExpr  string
}

// SearchOptions configures a dense-only search call.
type SearchOptions struct {
	TopK       int
	Threshold  float64 // minimum score; 0 disables filtering
	FilterExpr string
}

// DefaultRRFConstant matches spec §4.6's RRF(k) default.
const DefaultRRFConstant = 100

// ErrCollectionExists is returned by CreateCollection/CreateHybridCollection
// when name already exists and has not been dropped.
var ErrCollectionExists = fmt.Errorf("collection already exists")

// ErrCollectionNotFound is returned by operations addressing a collection
// that has not been created.
var ErrCollectionNotFound = fmt.Errorf("collection not found")

// CollectionLimitReached is returned by CreateCollection/CreateHybridCollection
// when CheckCollectionLimit would return false — callers must not attempt a
// create after observing false from CheckCollectionLimit, but the adapter
// also enforces it itself as a defense against races between the two calls.
var ErrCollectionLimitReached = fmt.Errorf("collection limit reached")

// Store is the public contract spec §4.6 names.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dim int, description string) error
	CreateHybridCollection(ctx context.Context, name string, dim int, description string) error
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	CheckCollectionLimit(ctx context.Context) (bool, error)

	Insert(ctx context.Context, name string, docs []Doc) error
	InsertHybrid(ctx context.Context, name string, docs []Doc) error
	InsertHybridBatched(ctx context.Context, name string, docs []Doc, batchSize int) error

	Query(ctx context.Context, name, filterExpr string, outputFields []string, limit int) ([]Doc, error)
	Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]Hit, error)
	HybridSearch(ctx context.Context, name string, dense DenseRequest, sparse SparseRequest, opts HybridOptions) ([]Hit, error)

	Delete(ctx context.Context, name string, ids []string) error

	Close() error
}
