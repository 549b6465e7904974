package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatcherBasicGlobAndNegation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	require.True(t, m.Match("debug.log", false))
	require.False(t, m.Match("keep.log", false))
	require.False(t, m.Match("main.go", false))
}

func TestMatcherDirOnlyAndAnchored(t *testing.T) {
	m := New()
	m.AddPattern("/build/")
	m.AddPattern("tmp")

	require.True(t, m.Match("build", true))
	require.False(t, m.Match("build", false))
	require.True(t, m.Match("src/tmp", true))
}

func TestMatcherLastRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("*.txt")
	m.AddPattern("!notes/*.txt")
	m.AddPattern("notes/secret.txt")

	require.False(t, m.Match("notes/todo.txt", false))
	require.True(t, m.Match("notes/secret.txt", false))
	require.True(t, m.Match("readme.txt", false))
}

func TestAddFromFileMissingIsNotError(t *testing.T) {
	m := New()
	err := m.AddFromFile(filepath.Join(t.TempDir(), "nope.gitignore"), "")
	require.NoError(t, err)
}

func TestDiffPatternsPreservesOrder(t *testing.T) {
	added, removed := DiffPatterns("a\nb\nc\n", "b\nc\nd\n")
	require.Equal(t, []string{"d"}, added)
	require.Equal(t, []string{"a"}, removed)
}

func TestResolveLayersDefaultsProjectAndCaller(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmignore"), []byte("should-not-load/\n"), 0o644))

	r := Resolve(dir, "", nil)
	require.True(t, r.Ignores("node_modules/pkg/index.js", false))
	require.True(t, r.Ignores("scratch.tmp", false))
	require.False(t, r.Ignores("should-not-load", true))

	r.Add([]string{"secrets/*.pem"})
	require.True(t, r.Ignores("secrets/server.pem", false))
}

func TestResolverAddEnvPatterns(t *testing.T) {
	r := Resolve(t.TempDir(), "", nil)
	r.AddEnvPatterns(" *.bak , build/out ")
	require.True(t, r.Ignores("file.bak", false))
	require.True(t, r.Ignores("build/out", true))
}

func TestComputeGitignoreHashStableAndSensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644))

	h1, err := ComputeGitignoreHash(dir)
	require.NoError(t, err)
	h2, err := ComputeGitignoreHash(dir)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n*.tmp\n"), 0o644))
	h3, err := ComputeGitignoreHash(dir)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
