package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kraklabs/codex-index/internal/ignore"
	"github.com/kraklabs/codex-index/internal/scanner"
)

// Synchronizer owns the per-codebase snapshot file: the content-hash
// mapping used to compute added/removed/modified sets between indexing
// runs. One Synchronizer exists per codebase root.
type Synchronizer struct {
	mu       sync.Mutex
	root     string
	path     string
	scanner  *scanner.Scanner
	resolver *ignore.Resolver
	logger   *slog.Logger
	entries  map[string]string
}

// Initialize canonicalizes root, builds the layered ignore resolver for it
// (defaults + project ignore files + optional global file + caller-supplied
// ignorePatterns, per spec §4.1), and loads the existing on-disk snapshot if
// present; otherwise it starts empty.
func Initialize(dataDir, root string, ignorePatterns []string, globalIgnoreFile string, logger *slog.Logger) (*Synchronizer, error) {
	canonical, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}

	resolver := ignore.Resolve(canonical, globalIgnoreFile, logger)
	resolver.Add(ignorePatterns)

	return InitializeWithResolver(dataDir, root, resolver, logger)
}

// InitializeWithResolver is Initialize with a caller-supplied Resolver,
// letting repeat callers over the same root (the reconciler, across ticks)
// reuse a cached Resolver instead of re-reading ignore files every cycle.
func InitializeWithResolver(dataDir, root string, resolver *ignore.Resolver, logger *slog.Logger) (*Synchronizer, error) {
	canonical, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}

	s := &Synchronizer{
		root:     canonical,
		path:     PathFor(dataDir, canonical),
		scanner:  scanner.New(),
		resolver: resolver,
		logger:   logger,
		entries:  make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("snapshot: read %s: %w", s.path, err)
	}

	var persisted fileFormat
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("snapshot: parse %s: %w", s.path, err)
	}
	if persisted.Entries != nil {
		s.entries = persisted.Entries
	}
	return s, nil
}

// PathFor derives the deterministic snapshot file path for a canonical root,
// mirroring the MD5-prefix derivation spec.md §3 uses for collection names
// (here SHA-256, since there is no collision-tolerance tradeoff to make).
func PathFor(dataDir, canonicalRoot string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(canonicalRoot)))
	name := "snapshot_" + hex.EncodeToString(sum[:])[:16] + ".json"
	return filepath.Join(dataDir, name)
}

// Root returns the canonical codebase root this synchronizer tracks.
func (s *Synchronizer) Root() string { return s.root }

// CheckForChanges walks Root under the ignore set, hashes each file's
// content, and compares the result with the in-memory snapshot state. A
// file that cannot be read is skipped with a warning rather than failing
// the whole diff (spec §4.4 failure model). On success the in-memory state
// is replaced with the freshly walked set, so a second call with no
// filesystem mutation between calls returns an empty diff.
func (s *Synchronizer) CheckForChanges(ctx context.Context) (*Diff, error) {
	results, err := s.scanner.Walk(ctx, scanner.Options{
		Root:   s.root,
		Ignore: s.resolver,
		Sorted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: walk: %w", err)
	}

	current := make(map[string]string)
	for r := range results {
		if r.Error != nil {
			return nil, fmt.Errorf("snapshot: walk: %w", r.Error)
		}
		data, err := os.ReadFile(r.File.AbsPath)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("snapshot: skipping unreadable file", "path", r.File.Path, "error", err)
			}
			continue
		}
		sum := sha256.Sum256(data)
		current[r.File.Path] = hex.EncodeToString(sum[:])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	diff := &Diff{}
	for path, hash := range current {
		if old, ok := s.entries[path]; !ok {
			diff.Added = append(diff.Added, path)
		} else if old != hash {
			diff.Modified = append(diff.Modified, path)
		}
	}
	for path := range s.entries {
		if _, ok := current[path]; !ok {
			diff.Removed = append(diff.Removed, path)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)

	s.entries = current
	return diff, nil
}

// Commit atomically replaces the on-disk snapshot with the current
// in-memory state via a write-temp + rename.
func (s *Synchronizer) Commit() error {
	s.mu.Lock()
	entries := s.entries
	s.mu.Unlock()

	payload := fileFormat{MerkleRoot: merkleRoot(entries), Entries: entries}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the on-disk snapshot file for root, if any. It is a
// static operation: no Synchronizer instance is required.
func DeleteSnapshot(dataDir, root string) error {
	canonical, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("snapshot: resolve root: %w", err)
	}
	err = os.Remove(PathFor(dataDir, canonical))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// merkleRoot computes the aggregate root hash over sorted entries. Commit
// stores it in the snapshot file as merkle_root; nothing reads it back.
func merkleRoot(entries map[string]string) string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(entries[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
