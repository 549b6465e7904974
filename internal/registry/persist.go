package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// pathSeparator is the separator FindContainingIndex uses to decide
// whether path is a descendant of a registered root. Roots and paths
// arrive slash-normalized by callers (see scanner.FileInfo.Path), so a
// literal forward slash is used regardless of platform.
const pathSeparator = '/'

// load reads the registry file at path, tolerating a missing file as an
// empty registry. A corrupt file is returned as an error — the caller
// decides whether to start fresh or fail startup.
func load(path string) ([]*Codebase, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}

	byRoot := make(map[string]*Codebase, len(pf.Indexes)+len(pf.ActiveIndexing))
	for _, cb := range pf.Indexes {
		byRoot[cb.Root] = cb
	}
	for _, cb := range pf.ActiveIndexing {
		byRoot[cb.Root] = cb
	}
	out := make([]*Codebase, 0, len(byRoot))
	for _, cb := range byRoot {
		out = append(out, cb)
	}
	return out, nil
}

// saveLocked serializes the current state and atomically replaces the
// registry file via write-to-temp-then-rename, matching the durable
// single-file persistence pattern session storage uses elsewhere in this
// module. Per spec §7, a mutation that fails to persist is retried once
// (the same write of the in-memory state) before being logged and left
// in-memory only; the caller must hold r.mu.
func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	if err := r.writeLocked(); err != nil {
		if retryErr := r.writeLocked(); retryErr != nil {
			slog.Default().Warn("registry: persist failed after retry, continuing in-memory only",
				"path", r.path, "error", retryErr)
			return nil
		}
	}
	return nil
}

func (r *Registry) writeLocked() error {
	pf := persistedFile{
		Version:       registryVersion,
		LastUpdatedMS: time.Now().UnixMilli(),
	}
	for _, cb := range r.roots {
		if cb.State == StateIndexing {
			pf.ActiveIndexing = append(pf.ActiveIndexing, cb)
		} else {
			pf.Indexes = append(pf.Indexes, cb)
		}
	}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir %s: %w", dir, err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("registry: rename %s -> %s: %w", tmpPath, r.path, err)
	}
	return nil
}
