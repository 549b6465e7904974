// Package registry implements the Codebase Registry (C8): the in-memory
// root -> Codebase map, persisted to one atomically-rewritten file, that
// tracks each codebase's indexing state machine (spec §4.8).
package registry

import "time"

// State is a Codebase's position in spec §4.8's state machine. The zero
// value "not_found" is never itself persisted — its absence from the map
// is what Status/Info report as not_found.
type State string

const (
	StateNotFound    State = "not_found"
	StateIndexing    State = "indexing"
	StateIndexed     State = "indexed"
	StateIndexFailed State = "indexfailed"
)

// Codebase is one registered root's current state.
type Codebase struct {
	Root           string    `json:"root"`
	CollectionName string    `json:"collection_name"`
	Hybrid         bool      `json:"hybrid"`
	State          State     `json:"state"`
	Percent        int       `json:"percent"`
	IndexedFiles   int       `json:"indexed_files,omitempty"`
	TotalChunks    int       `json:"total_chunks,omitempty"`
	Error          string    `json:"error,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// persistedFile is the on-disk shape spec §6 names: two lists the state
// machine keeps disjoint (indexing vs. terminal), a version tag, and a
// last-write timestamp for diagnostics.
type persistedFile struct {
	Version        int         `json:"version"`
	LastUpdatedMS  int64       `json:"last_updated_ms"`
	Indexes        []*Codebase `json:"indexes"`
	ActiveIndexing []*Codebase `json:"activeIndexing"`
}

const registryVersion = 1
