package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestOllamaProviderEmbedBatchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var n int
		switch v := req.Input.(type) {
		case string:
			n = 1
		case []any:
			n = len(v)
		}
		resp := ollamaEmbedResponse{Embeddings: make([][]float64, n)}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float64{3, 4} // magnitude 5
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: srv.URL})
	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	// normalized: 3/5, 4/5
	require.InDelta(t, 0.6, out[0][0], 0.001)
	require.InDelta(t, 0.8, out[0][1], 0.001)
	require.Equal(t, 2, p.Dimension())
}

func TestOllamaProviderEmbedBatchAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: srv.URL})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	var ce *errs.CodexError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, errs.CodeEmbeddingAuthentication, ce.Code)
	require.False(t, errs.IsRetryable(err))
}

func TestOllamaProviderEmbedBatchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: srv.URL})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	require.True(t, errs.IsRetryable(err))
}

func TestOllamaProviderEmbedBatchMismatchedCountIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaEmbedResponse{Embeddings: [][]float64{{1, 0}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{Host: srv.URL})
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	var ce *errs.CodexError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, errs.CodeEmbeddingInvalidResponse, ce.Code)
}

func TestOllamaProviderDefaultsApplied(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	require.Equal(t, DefaultOllamaHost, p.cfg.Host)
	require.Equal(t, DefaultOllamaModel, p.cfg.Model)
	require.Equal(t, DefaultOllamaBatchSize, p.MaxBatchSize())
}
