package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codex-index/internal/chunk"
)

func TestTrimToLimitBelowLimitPassesThrough(t *testing.T) {
	chunks := make([]*chunk.Chunk, 10)
	out, hit := trimToLimit(chunks, 0)
	require.Len(t, out, 10)
	require.False(t, hit)
}

func TestTrimToLimitExactlyAtLimit(t *testing.T) {
	chunks := make([]*chunk.Chunk, 5)
	out, hit := trimToLimit(chunks, ChunkLimit-5)
	require.Len(t, out, 5)
	require.True(t, hit)
}

func TestTrimToLimitTrimsOverflowAtBoundary(t *testing.T) {
	chunks := make([]*chunk.Chunk, 5)
	out, hit := trimToLimit(chunks, ChunkLimit-2)
	require.Len(t, out, 2)
	require.True(t, hit)
}

func TestTrimToLimitAlreadyAtLimitDropsEverything(t *testing.T) {
	chunks := make([]*chunk.Chunk, 3)
	out, hit := trimToLimit(chunks, ChunkLimit)
	require.Empty(t, out)
	require.True(t, hit)
}

// TestTrimToLimitSingleOversizedFile covers the scenario a single file's
// chunk set alone exceeds ChunkLimit: the overflow must be trimmed at the
// boundary rather than admitted whole, so a run never persists more than
// ChunkLimit chunks in total regardless of how they arrived.
func TestTrimToLimitSingleOversizedFile(t *testing.T) {
	chunks := make([]*chunk.Chunk, 500_000)
	out, hit := trimToLimit(chunks, 0)
	require.Len(t, out, ChunkLimit)
	require.True(t, hit)
}
