package embedding

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a test double recording every call it receives.
type fakeProvider struct {
	mu        sync.Mutex
	maxBatch  int
	dim       int
	name      string
	calls     [][]string
	failFirst int // fail this many calls with a retryable error before succeeding
	failErr   error
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	callNum := len(f.calls)
	f.mu.Unlock()

	if callNum <= f.failFirst {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, "transient", nil)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (f *fakeProvider) MaxBatchSize() int { return f.maxBatch }
func (f *fakeProvider) Dimension() int    { return f.dim }
func (f *fakeProvider) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake"
}

func TestEmbedBatchPreservesOrderAcrossSubBatches(t *testing.T) {
	p := &fakeProvider{maxBatch: 2, dim: 1}
	c := NewClient(p, 0, 0)

	texts := []string{"aaaa", "b", "ccc", "dd"}
	results, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, txt := range texts {
		require.Equal(t, float32(len(txt)), results[i][0])
	}
	require.Len(t, p.calls, 2, "4 texts over a max batch of 2 should split into 2 calls")
}

func TestEmbedBatchHonorsSmallerCallerBatchSize(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewClient(p, 1, 0)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, p.calls, 3, "caller batch size of 1 should force one call per text")
}

func TestEmbedBatchReplacesEmptyWithSpace(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewClient(p, 0, 0)

	_, err := c.EmbedBatch(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	require.Len(t, p.calls, 1)
	for _, sent := range p.calls[0] {
		require.Equal(t, " ", sent)
	}
}

func TestEmbedBatchTruncatesOverTokenBudget(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewClient(p, 0, 2) // 2 tokens * 4 chars/token = 8 char budget

	long := strings.Repeat("x", 20)
	_, err := c.EmbedBatch(context.Background(), []string{long})
	require.NoError(t, err)
	require.Len(t, p.calls[0][0], 8)
}

func TestEmbedBatchRetriesRetryableFailure(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1, failFirst: 1}
	c := NewClient(p, 0, 0)
	c.retry.InitialDelay = 0
	c.retry.MaxDelay = 0

	results, err := c.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, p.calls, 2)
}

func TestEmbedBatchDoesNotRetryAuthenticationFailure(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1, failFirst: 100,
		failErr: errs.EmbeddingError(errs.EmbeddingAuthentication, "bad key", nil)}
	c := NewClient(p, 0, 0)

	_, err := c.EmbedBatch(context.Background(), []string{"hello"})
	require.Error(t, err)
	require.Len(t, p.calls, 1, "authentication failure must not be retried")
}

func TestDetectDimensionProbesProvider(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 0}
	c := NewClient(p, 0, 0)

	dim, err := c.DetectDimension(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, dim)
}

func TestEmptyBatchReturnsNil(t *testing.T) {
	p := &fakeProvider{maxBatch: 10, dim: 1}
	c := NewClient(p, 0, 0)

	results, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, results)
}
