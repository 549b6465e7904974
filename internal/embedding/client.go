package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/codex-index/internal/errs"
)

// Client wraps a Provider with the order-preserving sub-batch splitting,
// preprocessing, retry, and circuit-breaker behavior spec §4.5 requires.
// Empty or whitespace-only inputs are replaced by a single space and sent
// like any other input; errs.Retry/errs.CircuitBreaker wrap each sub-batch
// call.
type Client struct {
	provider    Provider
	breaker     *errs.CircuitBreaker
	retry       errs.RetryConfig
	batchSize   int
	tokenBudget int
}

// NewClient builds a Client. batchSize is the caller's target sub-batch
// size, honored whenever it does not exceed the provider's own ceiling
// (spec §4.5); 0 defers entirely to the provider's ceiling. tokenBudget is
// the max-tokens-per-input budget used for truncation; 0 uses
// DefaultTokenBudget.
func NewClient(provider Provider, batchSize, tokenBudget int) *Client {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Client{
		provider:    provider,
		breaker:     errs.NewCircuitBreaker("embedding:" + provider.Name()),
		retry:       errs.DefaultRetryConfig(),
		batchSize:   batchSize,
		tokenBudget: tokenBudget,
	}
}

// Embed generates a single embedding via EmbedBatch, per spec §4.5.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch preprocesses each input, splits into sub-batches bounded by
// min(targetBatchSize, provider.MaxBatchSize()), and calls the provider
// through retry+circuit-breaker for each sub-batch, reassembling results in
// input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prepared := make([]string, len(texts))
	maxChars := c.tokenBudget * charsPerToken
	for i, t := range texts {
		prepared[i] = preprocess(t, maxChars)
	}

	effectiveBatch := c.provider.MaxBatchSize()
	if c.batchSize > 0 && c.batchSize < effectiveBatch {
		effectiveBatch = c.batchSize
	}
	if effectiveBatch <= 0 {
		effectiveBatch = len(prepared)
	}

	results := make([][]float32, len(prepared))
	for start := 0; start < len(prepared); start += effectiveBatch {
		end := start + effectiveBatch
		if end > len(prepared) {
			end = len(prepared)
		}
		sub := prepared[start:end]

		vecs, err := errs.RetryWithResult(ctx, c.retry, func() ([][]float32, error) {
			var out [][]float32
			execErr := c.breaker.Execute(func() error {
				var innerErr error
				out, innerErr = c.provider.EmbedBatch(ctx, sub)
				return innerErr
			})
			return out, execErr
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: sub-batch [%d:%d]: %w", start, end, err)
		}
		copy(results[start:end], vecs)
	}

	return results, nil
}

// Dimension returns the provider's statically known dimension.
func (c *Client) Dimension() int {
	return c.provider.Dimension()
}

// DetectDimension probes the provider with a short text.
func (c *Client) DetectDimension(ctx context.Context) (int, error) {
	vec, err := c.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

// ProviderName identifies the backing provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// preprocess replaces an empty/whitespace-only input with a single space
// and truncates to maxChars, per spec §4.5.
func preprocess(text string, maxChars int) string {
	if strings.TrimSpace(text) == "" {
		return " "
	}
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}

var _ Embedder = (*Client)(nil)
