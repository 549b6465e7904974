// Package embedding implements the Embedding Client (C5): a thin,
// order-preserving batching layer over a pluggable embedding provider
// (spec §4.5, §6).
package embedding

import "context"

// Embedder is the public contract spec §4.5 names.
type Embedder interface {
	// Embed generates a single embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, preserving input order
	// across any internal sub-batching.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension, if known upfront.
	Dimension() int

	// DetectDimension probes the provider with a short text and returns the
	// observed dimension, for providers that don't advertise it statically.
	DetectDimension(ctx context.Context) (int, error)

	// ProviderName identifies the backing provider.
	ProviderName() string
}

// Provider is the low-level, single-sub-batch collaborator a Client wraps.
// Implementations issue exactly one call per invocation; Client owns
// sub-batch splitting, retry, and the circuit breaker.
type Provider interface {
	// EmbedBatch embeds a batch already within MaxBatchSize. It MUST NOT be
	// called with more texts than MaxBatchSize() or an empty slice.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize is the provider's per-call upper batch size ceiling.
	MaxBatchSize() int

	// Dimension returns the provider's embedding dimension, or 0 if unknown
	// until the first call.
	Dimension() int

	// Name identifies the provider for ProviderName().
	Name() string
}

// DefaultTokenBudget approximates the context window most local embedding
// models (e.g. EmbeddingGemma-class models) are served with; preprocessing
// truncates to 4 chars/token of this budget per spec §4.5.
const DefaultTokenBudget = 2048

// charsPerToken is the character-per-token approximation spec §4.5 names.
const charsPerToken = 4
