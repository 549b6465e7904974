package logging

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "codex-index.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("indexing started", "root", "/repo")

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "indexing started")
	require.Contains(t, string(data), `"root":"/repo"`)
}

func TestTailReturnsLastNLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	writeLines(t, path, []string{"a", "b", "c", "d", "e"})

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, Tail(path, 2, w))
	require.Equal(t, "d\ne\n", buf.String())
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		_, err := f.WriteString(l + "\n")
		require.NoError(t, err)
	}
}
