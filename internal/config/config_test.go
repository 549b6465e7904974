package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.True(t, c.Search.HybridMode)
	require.Equal(t, 100, c.Search.RRFConstant)
	require.Equal(t, 0.3, c.Search.Threshold)
	require.Equal(t, 32, c.Embeddings.BatchSize)
	require.NoError(t, c.Validate())
}

func TestLoadMergesProjectFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "search:\n  rrf_constant: 42\nembeddings:\n  batch_size: 16\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codex.yaml"), []byte(yaml), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.Search.RRFConstant)
	require.Equal(t, 16, cfg.Embeddings.BatchSize)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "performance:\n  api_concurrency: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codex.yaml"), []byte(yaml), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("API_CONCURRENCY", "7")
	t.Setenv("HYBRID_MODE", "false")
	t.Setenv("CUSTOM_EXTENSIONS", ".rs, .zig")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Performance.APIConcurrency)
	require.False(t, cfg.Search.HybridMode)
	require.Equal(t, []string{".rs", ".zig"}, cfg.Paths.CustomExtensions)
}

func TestValidateRejectsBadValues(t *testing.T) {
	c := NewConfig()
	c.Performance.MemoryLimitMB = 10
	require.Error(t, c.Validate())

	c = NewConfig()
	c.Performance.APIConcurrency = 11
	require.Error(t, c.Validate())

	c = NewConfig()
	c.Server.Transport = "carrier-pigeon"
	require.Error(t, c.Validate())
}
