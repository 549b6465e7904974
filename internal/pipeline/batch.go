package pipeline

import (
	"os"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/kraklabs/codex-index/internal/config"
)

// batchConfig is the resolved resource plan for one run (spec §4.7 step 3,
// §5). Dynamically derived from provider capability, system CPU count,
// config.PerformanceConfig, and the environment overrides named in §6,
// rather than a single static constant set.
type batchConfig struct {
	embeddingBatchSize int
	fileConcurrency    int
	apiConcurrency     int
	memoryLimitMB      int
}

// defaultAPIConcurrency returns the provider-specific default named in
// spec §5, capped at 10 regardless of provider.
func defaultAPIConcurrency(providerName string) int {
	switch providerName {
	case "openai":
		return 5
	case "voyageai", "voyage":
		return 3
	case "gemini":
		return 2
	case "ollama":
		return 10
	default:
		return 5
	}
}

// computeBatchConfig resolves §4.7 step 3's batch configuration: start from
// config.PerformanceConfig (itself already seeded with CPU-scaled defaults
// and env overrides per config.Config.ApplyEnv), fold in the provider's own
// default concurrency when the config left it at the generic default, and
// respect the provider's own batch-size ceiling.
func computeBatchConfig(perf config.PerformanceConfig, embedBatchSize, providerMaxBatch int, providerName string) batchConfig {
	cfg := batchConfig{
		embeddingBatchSize: embedBatchSize,
		fileConcurrency:    perf.FileConcurrency,
		apiConcurrency:     perf.APIConcurrency,
		memoryLimitMB:      perf.MemoryLimitMB,
	}

	if cfg.fileConcurrency <= 0 {
		cfg.fileConcurrency = min(runtime.NumCPU()*2, 20)
	}
	if cfg.apiConcurrency <= 0 || cfg.apiConcurrency == config.NewConfig().Performance.APIConcurrency {
		cfg.apiConcurrency = defaultAPIConcurrency(providerName)
	}
	if cfg.memoryLimitMB <= 0 {
		cfg.memoryLimitMB = 1536
	}
	if cfg.embeddingBatchSize <= 0 {
		cfg.embeddingBatchSize = 32
	}

	if v, ok := envInt("EMBEDDING_BATCH_SIZE"); ok {
		cfg.embeddingBatchSize = v
	}
	if v, ok := envInt("API_CONCURRENCY"); ok {
		cfg.apiConcurrency = v
	}
	if v, ok := envInt("FILE_CONCURRENCY"); ok {
		cfg.fileConcurrency = v
	}
	if v, ok := envInt("MEMORY_LIMIT_MB"); ok {
		cfg.memoryLimitMB = v
	}

	if cfg.apiConcurrency > 10 {
		cfg.apiConcurrency = 10
	}
	if providerMaxBatch > 0 && cfg.embeddingBatchSize > providerMaxBatch {
		cfg.embeddingBatchSize = providerMaxBatch
	}

	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// memoryPressure reports heap-in-use as a fraction of limitMB, per §5's
// memory policy. runtime.MemStats is Go's own heap view, not total system
// memory.
func memoryPressure(limitMB int) float64 {
	if limitMB <= 0 {
		return 0
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	limitBytes := float64(limitMB) * 1024 * 1024
	return float64(m.HeapAlloc) / limitBytes
}

// maybeGCHint requests a best-effort collection when memory after a batch
// still exceeds 70% of the limit (spec §4.7 step 8). debug.FreeOSMemory
// forces a GC pass and returns memory to the OS; on hosts where that
// wouldn't help this is simply a cheap no-op, matching the "host-dependent"
// framing in the spec.
func maybeGCHint(limitMB int) {
	if memoryPressure(limitMB) > 0.70 {
		debug.FreeOSMemory()
	}
}
