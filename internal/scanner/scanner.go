package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/kraklabs/codex-index/internal/ignore"
)

// Options configures one Walk call.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Extensions restricts discovery to these extensions/filenames
	// (case-sensitive, dotted). Nil uses DefaultExtensions.
	Extensions []string

	// Ignore resolves exclusion per spec §4.1; required.
	Ignore *ignore.Resolver

	// MaxFileSize bounds individual file size (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks enables following directory symlinks whose target
	// resolves within Root (spec §4.2). File symlinks outside Root are
	// never followed regardless of this setting.
	FollowSymlinks bool

	// Sorted, when true, yields paths in sorted order for deterministic
	// test output (spec §4.2 allows unspecified-but-stable order).
	Sorted bool
}

// Scanner discovers indexable files under a root.
type Scanner struct{}

// New creates a Scanner. It never fails; kept as a constructor for symmetry
// with the rest of the component set and to allow future caching state.
func New() *Scanner { return &Scanner{} }

// Walk recursively enumerates regular files under opts.Root whose extension
// is supported and whose relative path is not ignored, streaming results on
// the returned channel. The channel is closed when the walk completes or ctx
// is cancelled.
func (s *Scanner) Walk(ctx context.Context, opts Options) (<-chan Result, error) {
	if opts.Ignore == nil {
		return nil, fmt.Errorf("scanner: ignore resolver is required")
	}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanner: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanner: root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[e] = true
	}

	results := make(chan Result, runtime.NumCPU()*4)

	if opts.Sorted {
		go func() {
			defer close(results)
			files, err := s.collectSorted(ctx, absRoot, opts, extSet, maxSize)
			if err != nil {
				select {
				case results <- Result{Error: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, f := range files {
				select {
				case results <- Result{File: f}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return results, nil
	}

	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, extSet, maxSize, results)
	}()
	return results, nil
}

func (s *Scanner) collectSorted(ctx context.Context, absRoot string, opts Options, extSet map[string]bool, maxSize int64) ([]*FileInfo, error) {
	buffered := make(chan Result, 1024)
	go func() {
		defer close(buffered)
		s.walk(ctx, absRoot, opts, extSet, maxSize, buffered)
	}()

	var files []*FileInfo
	for r := range buffered {
		if r.Error != nil {
			return nil, r.Error
		}
		files = append(files, r.File)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, extSet map[string]bool, maxSize int64, results chan<- Result) {
	_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if opts.Ignore.Ignores(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !s.symlinkStaysWithinRoot(absRoot, path, opts.FollowSymlinks) {
				return nil
			}
		}

		if opts.Ignore.Ignores(relPath, false) {
			return nil
		}

		if !extensionAllowed(relPath, extSet) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		language := DetectLanguage(relPath)
		fi := &FileInfo{
			Path:        relPath,
			AbsPath:     path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: DetectContentType(language),
			Language:    language,
		}

		select {
		case results <- Result{File: fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// symlinkStaysWithinRoot reports whether a symlink should be traversed: file
// symlinks resolving outside root are never followed; directory symlinks are
// followed only when FollowSymlinks is set and the target stays within root.
func (s *Scanner) symlinkStaysWithinRoot(absRoot, path string, followSymlinks bool) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	within := target == absRoot || strings.HasPrefix(target, absRoot+string(filepath.Separator))
	if !within {
		return false
	}
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return followSymlinks
	}
	return true
}

func extensionAllowed(relPath string, extSet map[string]bool) bool {
	base := baseName(relPath)
	if extSet[base] {
		return true
	}
	return extSet[extension(relPath)]
}
