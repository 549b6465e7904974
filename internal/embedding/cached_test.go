package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCachedEmbedderCachesOnEmbed(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewCachedEmbedder(NewClient(p, 0, 0), 0)

	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, p.calls, 1, "second Embed of the same text should hit the cache")
}

func TestCachedEmbedderBatchOnlyEmbedsMisses(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewCachedEmbedder(NewClient(p, 0, 0), 0)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, p.calls, 1)
	require.ElementsMatch(t, []string{"a", "b"}, p.calls[0])

	results, err := c.EmbedBatch(context.Background(), []string{"a", "c"})
	require.NoError(t, err)
	require.Len(t, p.calls, 2, "only the miss (c) should trigger a new call")
	require.Equal(t, []string{"c"}, p.calls[1])
	require.Len(t, results, 2)
}

func TestCachedEmbedderAllCachedSkipsInnerCall(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewCachedEmbedder(NewClient(p, 0, 0), 0)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, p.calls, 1)

	_, err = c.EmbedBatch(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, p.calls, 1, "fully cached batch should not call the inner embedder again")
}

func TestCachedEmbedderKeyIsProviderScoped(t *testing.T) {
	p1 := &fakeProvider{maxBatch: 10, dim: 1, name: "fake-1"}
	p2 := &fakeProvider{maxBatch: 10, dim: 1, name: "fake-2"}
	c1 := NewCachedEmbedder(NewClient(p1, 0, 0), 0)
	c2 := NewCachedEmbedder(NewClient(p2, 0, 0), 0)

	require.NotEqual(t, c1.key("x"), c2.key("x"), "different providers must not share cache entries")
}

func TestCachedEmbedderEmptyBatchReturnsNil(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewCachedEmbedder(NewClient(p, 0, 0), 0)

	results, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, results)
}
