package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codex-index/internal/ignore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, ch <-chan Result) []*FileInfo {
	t.Helper()
	var files []*FileInfo
	for r := range ch {
		require.NoError(t, r.Error)
		files = append(files, r.File)
	}
	return files
}

func TestWalkSkipsIgnoredAndUnsupportedExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "binary.exe"), "\x00\x01")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "module.exports = {}\n")
	writeFile(t, filepath.Join(root, ".gitignore"), "ignored.go\n")
	writeFile(t, filepath.Join(root, "ignored.go"), "package main\n")

	resolver := ignore.Resolve(root, "", nil)
	ch, err := New().Walk(context.Background(), Options{Root: root, Ignore: resolver, Sorted: true})
	require.NoError(t, err)

	files := collect(t, ch)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	require.Equal(t, []string{"main.go"}, paths)
}

func TestWalkPrunesIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vendor", "dep.go"), "package dep\n")
	writeFile(t, filepath.Join(root, "src", "main.go"), "package main\n")

	resolver := ignore.Resolve(root, "", nil)
	ch, err := New().Walk(context.Background(), Options{Root: root, Ignore: resolver, Sorted: true})
	require.NoError(t, err)

	files := collect(t, ch)
	require.Len(t, files, 1)
	require.Equal(t, "src/main.go", files[0].Path)
}

func TestWalkRespectsMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.go"), string(make([]byte, 1024)))

	resolver := ignore.Resolve(root, "", nil)
	ch, err := New().Walk(context.Background(), Options{Root: root, Ignore: resolver, MaxFileSize: 10, Sorted: true})
	require.NoError(t, err)

	files := collect(t, ch)
	require.Empty(t, files)
}

func TestWalkCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.zig"), "pub fn main() void {}\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")

	resolver := ignore.Resolve(root, "", nil)
	ch, err := New().Walk(context.Background(), Options{Root: root, Ignore: resolver, Extensions: []string{".zig"}, Sorted: true})
	require.NoError(t, err)

	files := collect(t, ch)
	require.Len(t, files, 1)
	require.Equal(t, "main.zig", files[0].Path)
}

func TestWalkDoesNotFollowFileSymlinkOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.go")
	writeFile(t, target, "package secret\n")

	link := filepath.Join(root, "link.go")
	require.NoError(t, os.Symlink(target, link))

	resolver := ignore.Resolve(root, "", nil)
	ch, err := New().Walk(context.Background(), Options{Root: root, Ignore: resolver, Sorted: true})
	require.NoError(t, err)

	files := collect(t, ch)
	require.Empty(t, files)
}

func TestWalkRequiresIgnoreResolver(t *testing.T) {
	_, err := New().Walk(context.Background(), Options{Root: t.TempDir()})
	require.Error(t, err)
}
