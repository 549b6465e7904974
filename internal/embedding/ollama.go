package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/kraklabs/codex-index/internal/errs"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "qwen3-embedding:0.6b"

	// DefaultOllamaBatchSize is Ollama's practical per-call ceiling; it has
	// no documented hard limit, so this is the provider's MaxBatchSize().
	DefaultOllamaBatchSize = 32

	ollamaRequestTimeout = 60 * time.Second
)

// OllamaConfig configures OllamaProvider.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int // 0 = auto-detect on first call
	BatchSize  int
	Timeout    time.Duration
}

// OllamaProvider implements Provider over Ollama's HTTP /api/embed
// endpoint. It has no thermal-progression timeouts, model-fallback
// probing, or GGUF model management — those address a single
// local-hardware deployment concern outside the Embedding Client's
// spec'd contract; ordering/retry/batching is owned by Client (C5)
// instead of duplicated here.
type OllamaProvider struct {
	client *http.Client
	cfg    OllamaConfig

	mu   sync.RWMutex
	dims int
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider builds a provider against cfg, applying defaults for
// unset fields.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOllamaBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = ollamaRequestTimeout
	}
	return &OllamaProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		dims:   cfg.Dimensions,
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// EmbedBatch issues one POST /api/embed call for texts (already within
// MaxBatchSize), classifying failures per spec §4.5's EmbeddingError
// subkinds so the Client's retry loop can tell authentication apart from
// transient transport errors.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: input})
	if err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingInvalidResponse, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errs.EmbeddingError(errs.EmbeddingAuthentication, fmt.Sprintf("ollama auth failed: %s", respBody), nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errs.EmbeddingError(errs.EmbeddingRateLimited, fmt.Sprintf("ollama rate limited: %s", respBody), nil)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errs.EmbeddingError(errs.EmbeddingTransport, fmt.Sprintf("ollama status %d: %s", resp.StatusCode, respBody), nil)
	}

	var apiResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, errs.EmbeddingError(errs.EmbeddingInvalidResponse, "decode ollama response", err)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, errs.EmbeddingError(errs.EmbeddingInvalidResponse,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(apiResp.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(apiResp.Embeddings))
	for i, emb := range apiResp.Embeddings {
		out[i] = normalize(toFloat32(emb))
	}

	p.mu.Lock()
	if p.dims == 0 && len(out) > 0 {
		p.dims = len(out[0])
	}
	p.mu.Unlock()

	return out, nil
}

// MaxBatchSize returns the configured per-call ceiling.
func (p *OllamaProvider) MaxBatchSize() int { return p.cfg.BatchSize }

// Dimension returns the configured or auto-detected dimension.
func (p *OllamaProvider) Dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dims
}

// Name identifies the provider.
func (p *OllamaProvider) Name() string { return "ollama:" + p.cfg.Model }

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// normalize scales v to unit length; a zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	mag := math.Sqrt(sumSquares)
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
	return v
}
