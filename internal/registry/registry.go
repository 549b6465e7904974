package registry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/codex-index/internal/errs"
)

// CollectionNameFor computes the deterministic collection name spec §3
// defines: prefix + "_" + first 8 hex chars of MD5(canonical root), where
// prefix is "hybrid_code_chunks" in hybrid mode and "code_chunks"
// otherwise. The mapping is stable across runs for a given root and mode.
func CollectionNameFor(canonicalRoot string, hybrid bool) string {
	prefix := "code_chunks"
	if hybrid {
		prefix = "hybrid_code_chunks"
	}
	sum := md5.Sum([]byte(canonicalRoot))
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(sum[:])[:8])
}

// Registry is the in-memory root -> Codebase map backed by one
// atomically-rewritten file (persist.go). All mutating operations take the
// same mutex; callers never see a torn read.
type Registry struct {
	mu    sync.Mutex
	path  string
	roots map[string]*Codebase
}

// NewRegistry loads path if it exists and returns a ready Registry. A
// missing file is not an error — it means an empty registry.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, roots: make(map[string]*Codebase)}
	loaded, err := load(path)
	if err != nil {
		return nil, err
	}
	for _, cb := range loaded {
		r.roots[cb.Root] = cb
	}
	return r, nil
}

// Register transitions root into the indexing state. Allowed from
// not_found, indexed, or indexfailed; indexing -> indexing is rejected as
// AlreadyIndexing. A root already covered by an ancestor's indexed or
// indexing registration is rejected as SubtreeCovered. The collection name
// is derived deterministically from root and hybrid (spec §3); a collision
// against a different already-registered root is rejected rather than
// silently sharing a collection (spec §4 Open Question).
func (r *Registry) Register(root string, hybrid bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.roots[root]; ok && cb.State == StateIndexing {
		return errs.AlreadyIndexing(root)
	}
	if existing := r.findContainingLocked(root); existing != nil && existing.Root != root {
		return errs.SubtreeCovered(root)
	}

	collectionName := CollectionNameFor(root, hybrid)
	for otherRoot, cb := range r.roots {
		if otherRoot != root && cb.CollectionName == collectionName {
			return errs.New("COLLECTION_COLLISION",
				fmt.Sprintf("collection name %q for root %q collides with existing root %q", collectionName, root, otherRoot),
				nil).WithDetail("root", root).WithDetail("collides_with", otherRoot)
		}
	}

	r.roots[root] = &Codebase{
		Root:           root,
		CollectionName: collectionName,
		Hybrid:         hybrid,
		State:          StateIndexing,
		Percent:        0,
		LastUpdated:    time.Now(),
	}
	return r.saveLocked()
}

// SetIndexing updates the progress percent of a root already in the
// indexing state. percent must be monotone non-decreasing relative to the
// last recorded value; a lower value is silently clamped up rather than
// rejected, since progress callers may race harmlessly.
func (r *Registry) SetIndexing(root string, percent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.roots[root]
	if !ok || cb.State != StateIndexing {
		return errs.NotIndexed(root)
	}
	if percent > cb.Percent {
		cb.Percent = percent
	}
	cb.LastUpdated = time.Now()
	return r.saveLocked()
}

// SetIndexed transitions root from indexing to the terminal indexed state.
func (r *Registry) SetIndexed(root string, indexedFiles, totalChunks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.roots[root]
	if !ok {
		return errs.NotIndexed(root)
	}
	cb.State = StateIndexed
	cb.Percent = 100
	cb.IndexedFiles = indexedFiles
	cb.TotalChunks = totalChunks
	cb.Error = ""
	cb.LastUpdated = time.Now()
	return r.saveLocked()
}

// SetIndexFailed transitions root from indexing to the terminal
// indexfailed state, recording the last percent reached and the error.
func (r *Registry) SetIndexFailed(root string, lastPercent int, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.roots[root]
	if !ok {
		return errs.NotIndexed(root)
	}
	cb.State = StateIndexFailed
	cb.Percent = lastPercent
	if cause != nil {
		cb.Error = cause.Error()
	}
	cb.LastUpdated = time.Now()
	return r.saveLocked()
}

// Remove deletes root from the registry entirely, returning it to
// not_found.
func (r *Registry) Remove(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roots[root]; !ok {
		return errs.NotIndexed(root)
	}
	delete(r.roots, root)
	return r.saveLocked()
}

// Status reports root's current state, or StateNotFound if unregistered.
func (r *Registry) Status(root string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.roots[root]
	if !ok {
		return StateNotFound
	}
	return cb.State
}

// Info returns a copy of root's full record, or nil if unregistered.
func (r *Registry) Info(root string) *Codebase {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.roots[root]
	if !ok {
		return nil
	}
	cp := *cb
	return &cp
}

// AllIndexed returns a snapshot of every root currently in the indexed
// state.
func (r *Registry) AllIndexed() []*Codebase {
	return r.allInState(StateIndexed)
}

// AllIndexing returns a snapshot of every root currently in the indexing
// state.
func (r *Registry) AllIndexing() []*Codebase {
	return r.allInState(StateIndexing)
}

// All returns a snapshot of every known root regardless of state, for an
// aggregate get_indexing_status report (spec §6).
func (r *Registry) All() []*Codebase {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Codebase, 0, len(r.roots))
	for _, cb := range r.roots {
		cp := *cb
		out = append(out, &cp)
	}
	return out
}

func (r *Registry) allInState(state State) []*Codebase {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Codebase
	for _, cb := range r.roots {
		if cb.State == state {
			cp := *cb
			out = append(out, &cp)
		}
	}
	return out
}

// FindContainingIndex returns the longest registered root r such that
// r == path or path starts with r + separator, or nil if no registered
// root contains path.
func (r *Registry) FindContainingIndex(path string) *Codebase {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb := r.findContainingLocked(path)
	if cb == nil {
		return nil
	}
	cp := *cb
	return &cp
}

func (r *Registry) findContainingLocked(path string) *Codebase {
	var best *Codebase
	for root, cb := range r.roots {
		if root != path && !strings.HasPrefix(path, root+string(pathSeparator)) {
			continue
		}
		if best == nil || len(root) > len(best.Root) {
			best = cb
		}
	}
	return best
}
