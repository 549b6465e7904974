package ignore

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultPatterns are always active, mirroring the mainstream
// build-artifact and dependency directories every supported-extension
// language tends to generate.
var defaultPatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// ignoreFileNames are the `.*ignore` files considered at the codebase root,
// in priority order. The npm-packaging file (.npmignore) is deliberately
// excluded per spec §3 — it governs publishing, not indexing.
var ignoreFileNames = []string{".gitignore", ".dockerignore", ".codexignore"}

// Resolver merges the layered pattern sources of spec §3's Ignore pattern
// set and answers per-path exclusion queries.
type Resolver struct {
	matcher *Matcher
	root    string
}

// Resolve loads and merges, once per root, the built-in defaults, any
// `.*ignore` file at root, and the optional global user file; callers layer
// further patterns on afterwards with Add. Missing sources contribute no patterns; unreadable
// sources log a warning and contribute nothing (spec §4.1).
func Resolve(root string, globalIgnoreFile string, logger *slog.Logger) *Resolver {
	root = filepath.ToSlash(filepath.Clean(root))
	r := &Resolver{matcher: New(), root: root}

	for _, p := range defaultPatterns {
		r.matcher.AddPattern(p)
	}

	for _, name := range ignoreFileNames {
		path := filepath.Join(root, name)
		if err := r.matcher.AddFromFile(path, ""); err != nil {
			if logger != nil {
				logger.Warn("failed to read ignore file", "path", path, "error", err)
			}
		}
	}

	if globalIgnoreFile != "" {
		if err := r.matcher.AddFromFile(globalIgnoreFile, ""); err != nil {
			if logger != nil {
				logger.Warn("failed to read global ignore file", "path", globalIgnoreFile, "error", err)
			}
		}
	}

	return r
}

// Add appends patterns to the accumulated set; it never replaces what is
// already present, so callers that load project files after configuring
// custom patterns keep both (spec §4.1).
func (r *Resolver) Add(patterns []string) {
	for _, p := range patterns {
		r.matcher.AddPattern(p)
	}
}

// AddEnvPatterns merges a comma-separated CUSTOM_IGNORE_PATTERNS value.
func (r *Resolver) AddEnvPatterns(csv string) {
	if csv == "" {
		return
	}
	parts := strings.Split(csv, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	r.Add(patterns)
}

// Ignores reports whether relativePath (relative to root, '/'-separated)
// is excluded. Pattern-matching failure on a specific input is never fatal;
// the path is treated as not ignored (spec §4.1).
func (r *Resolver) Ignores(relativePath string, isDir bool) bool {
	relativePath = filepath.ToSlash(relativePath)
	return r.matcher.Match(relativePath, isDir)
}

// Root returns the canonical root this resolver was built for.
func (r *Resolver) Root() string { return r.root }

// ComputeGitignoreHash walks root and returns a deterministic hash over the
// sorted contents of every `.gitignore` file found. The reconciler (C9)
// rebuilds its cached Resolver for a root when this hash changes.
func ComputeGitignoreHash(root string) (string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == ".gitignore" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hashSortedFiles(files)
}

// hashSortedFiles returns a hex SHA-256 digest over the concatenated
// contents of files, sorted by path so the result is order-independent.
func hashSortedFiles(files []string) (string, error) {
	sort.Strings(files)
	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		h.Write([]byte(f))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
