package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndStateMachine(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.Equal(t, StateNotFound, r.Status("/repo/a"))
	require.NoError(t, r.Register("/repo/a", false))
	require.Equal(t, StateIndexing, r.Status("/repo/a"))

	require.Error(t, r.Register("/repo/a", false))

	require.NoError(t, r.SetIndexing("/repo/a", 42))
	info := r.Info("/repo/a")
	require.Equal(t, 42, info.Percent)

	require.NoError(t, r.SetIndexed("/repo/a", 10, 200))
	require.Equal(t, StateIndexed, r.Status("/repo/a"))

	require.NoError(t, r.Register("/repo/a", false))
	require.Equal(t, StateIndexing, r.Status("/repo/a"))
}

func TestSetIndexFailedRecordsErrorAndPercent(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.NoError(t, r.Register("/repo/a", false))
	require.NoError(t, r.SetIndexing("/repo/a", 55))
	require.NoError(t, r.SetIndexFailed("/repo/a", 55, errBoom))

	info := r.Info("/repo/a")
	require.Equal(t, StateIndexFailed, info.State)
	require.Equal(t, 55, info.Percent)
	require.Equal(t, errBoom.Error(), info.Error)
}

func TestRemoveReturnsToNotFound(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.NoError(t, r.Register("/repo/a", false))
	require.NoError(t, r.SetIndexed("/repo/a", 1, 1))
	require.NoError(t, r.Remove("/repo/a"))
	require.Equal(t, StateNotFound, r.Status("/repo/a"))
	require.Error(t, r.Remove("/repo/a"))
}

func TestRegisterRejectsSubtreeOfExistingRoot(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.NoError(t, r.Register("/repo/a", false))
	err = r.Register("/repo/a/sub", false)
	require.Error(t, err)
}

func TestFindContainingIndexPicksLongestRoot(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.NoError(t, r.Register("/repo", false))
	require.NoError(t, r.SetIndexed("/repo", 1, 1))

	// No nested root registered yet: containment resolves to /repo.
	cb := r.FindContainingIndex("/repo/pkg/file.go")
	require.NotNil(t, cb)
	require.Equal(t, "/repo", cb.Root)

	cb = r.FindContainingIndex("/other/file.go")
	require.Nil(t, cb)

	cb = r.FindContainingIndex("/repo")
	require.NotNil(t, cb)
	require.Equal(t, "/repo", cb.Root)
}

func TestAllIndexedAndAllIndexing(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	require.NoError(t, r.Register("/repo/a", false))
	require.NoError(t, r.Register("/repo/b", false))
	require.NoError(t, r.SetIndexed("/repo/a", 1, 1))

	require.Len(t, r.AllIndexed(), 1)
	require.Len(t, r.AllIndexing(), 1)
}

func TestCollectionNameForIsStableAndModeSensitive(t *testing.T) {
	dense := CollectionNameFor("/repo/a", false)
	hybrid := CollectionNameFor("/repo/a", true)

	require.Equal(t, dense, CollectionNameFor("/repo/a", false))
	require.NotEqual(t, dense, hybrid)
	require.Contains(t, dense, "code_chunks_")
	require.Contains(t, hybrid, "hybrid_code_chunks_")
}

func TestRegistryPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	r, err := NewRegistry(path)
	require.NoError(t, err)
	require.NoError(t, r.Register("/repo/a", false))
	require.NoError(t, r.SetIndexed("/repo/a", 3, 30))
	require.NoError(t, r.Register("/repo/b", false))
	require.NoError(t, r.SetIndexing("/repo/b", 10))

	reloaded, err := NewRegistry(path)
	require.NoError(t, err)
	require.Equal(t, StateIndexed, reloaded.Status("/repo/a"))
	require.Equal(t, StateIndexing, reloaded.Status("/repo/b"))
	require.Equal(t, 10, reloaded.Info("/repo/b").Percent)
}

func TestAllReturnsEveryRootRegardlessOfState(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	require.NoError(t, r.Register("/repo/a", false))
	require.NoError(t, r.SetIndexed("/repo/a", 1, 1))
	require.NoError(t, r.Register("/repo/b", false))
	require.NoError(t, r.SetIndexFailed("/repo/b", 40, errBoom))
	require.NoError(t, r.Register("/repo/c", false))

	all := r.All()
	require.Len(t, all, 3)

	states := map[string]State{}
	for _, cb := range all {
		states[cb.Root] = cb.State
	}
	require.Equal(t, StateIndexed, states["/repo/a"])
	require.Equal(t, StateIndexFailed, states["/repo/b"])
	require.Equal(t, StateIndexing, states["/repo/c"])
}

type boomError struct{ msg string }

func (e *boomError) Error() string { return e.msg }

var errBoom = &boomError{msg: "embedding provider unavailable"}
