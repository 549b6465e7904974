// Package pipeline implements the Indexing Pipeline (C7): it is the center
// of gravity of the system, turning a codebase root into embedded chunks
// sitting in the vector store adapter (spec §4.7). It composes the file
// walker (C2), the splitter (C3), the snapshot synchronizer (C4), the
// embedding client (C5), and the vector store adapter (C6); it owns none of
// their internals.
package pipeline

import (
	"log/slog"

	"github.com/kraklabs/codex-index/internal/chunk"
	"github.com/kraklabs/codex-index/internal/embedding"
	"github.com/kraklabs/codex-index/internal/scanner"
	"github.com/kraklabs/codex-index/internal/vectorstore"
)

// Status values for IndexResult, per spec §4.7.
const (
	StatusCompleted    = "completed"
	StatusLimitReached = "limit_reached"
)

// ChunkLimit is the hard per-run ceiling on chunks indexed per codebase
// (spec §4.7 step 7).
const ChunkLimit = 450_000

// ScanProgressBudget is the fixed percentage spent on scanning/preparation
// before file-level progress begins (spec §4.7 step 9).
const ScanProgressBudget = 15

// ProgressFunc reports {percent, phase} from a single logical call site, so
// a single Pipeline run never regresses percent (spec §4.7 step 9, §5).
type ProgressFunc func(percent int, phase string)

// IndexResult is index_codebase's public result.
type IndexResult struct {
	IndexedFiles int
	TotalChunks  int
	Status       string
}

// ReindexResult is reindex_by_change's public result.
type ReindexResult struct {
	Added    int
	Removed  int
	Modified int
}

// IndexOptions parameterizes one index_codebase call.
type IndexOptions struct {
	// Root is the canonical absolute codebase root (C1 already resolved it).
	Root string
	// CollectionName is the vector store collection name the caller derived
	// for Root (spec §3's MD5-prefix formula lives with the caller, not C7).
	CollectionName string
	// Hybrid selects CreateHybridCollection/InsertHybrid over the dense-only
	// path (spec §3, §6 HYBRID_MODE).
	Hybrid bool
	// Extensions restricts the walk to these extensions, replacing the
	// scanner's defaults; nil uses the scanner's defaults.
	Extensions []string
	// IgnorePatterns are additional patterns layered onto the ignore
	// resolver beyond the project's own ignore files (spec §4.1).
	IgnorePatterns   []string
	GlobalIgnoreFile string
	// Force allows re-indexing a root that already has a collection,
	// dropping and recreating it first (spec §4.7 preconditions).
	Force bool
	// Subset restricts processing to exactly these relative paths, used by
	// reindex_by_change for the added/modified set (spec §4.7). Nil means
	// "the whole tree", the index_codebase case.
	Subset   []string
	Progress ProgressFunc
}

// Dependencies are the collaborators a Pipeline is built from. Splitter and
// Scanner have no persistent state and are safe to share across runs;
// Embedder and Store are assumed safe for concurrent use, per spec §6.
type Dependencies struct {
	Scanner  *scanner.Scanner
	Splitter *chunk.Splitter
	Embedder embedding.Embedder
	Store    vectorstore.Store
	Logger   *slog.Logger
}

// fileChunks is one file's split output, carried from the file-processing
// workers to the single chunk-buffering goroutine.
type fileChunks struct {
	chunks []*chunk.Chunk
}

// pendingBatch is a frozen group of chunks ready for Stage A embedding.
type pendingBatch struct {
	chunks []*chunk.Chunk
}

// embeddedBatch is a Stage A result ready for Stage B insertion.
type embeddedBatch struct {
	docs []vectorstore.Doc
}
