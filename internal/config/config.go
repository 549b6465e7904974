package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete codex-index configuration, loaded in order of
// increasing precedence: hardcoded defaults, user config, project config,
// then the environment overrides named in spec §6.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Registry    RegistryConfig    `yaml:"registry" json:"registry"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler" json:"reconciler"`
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
}

// PathsConfig configures which paths the walker (C2) includes/excludes.
type PathsConfig struct {
	CustomExtensions     []string `yaml:"custom_extensions" json:"custom_extensions"`
	CustomIgnorePatterns []string `yaml:"custom_ignore_patterns" json:"custom_ignore_patterns"`
}

// SearchConfig configures the query router (C10) and vector store (C6).
type SearchConfig struct {
	// HybridMode selects the collection prefix and query path (spec §3, §6).
	HybridMode bool `yaml:"hybrid_mode" json:"hybrid_mode"`
	// RRFConstant is the k parameter for Reciprocal Rank Fusion (spec §4.6, §4.10: default 100).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// Threshold is the default score cutoff (spec §4.10: default 0.3).
	Threshold float64 `yaml:"threshold" json:"threshold"`
	MaxResults int     `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding client (C5).
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// PerformanceConfig configures the indexing pipeline (C7) resource model.
type PerformanceConfig struct {
	FileConcurrency int `yaml:"file_concurrency" json:"file_concurrency"`
	APIConcurrency  int `yaml:"api_concurrency" json:"api_concurrency"`
	MemoryLimitMB   int `yaml:"memory_limit_mb" json:"memory_limit_mb"`
}

// ServerConfig configures the MCP/CLI transport glue.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// RegistryConfig configures the codebase registry (C8).
type RegistryConfig struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
}

// ReconcilerConfig configures the background reconciler (C9).
type ReconcilerConfig struct {
	Interval      string `yaml:"interval" json:"interval"`
	InitialDelay  string `yaml:"initial_delay" json:"initial_delay"`
}

// CoordinatorConfig configures cross-process locking (C11).
type CoordinatorConfig struct {
	LockTimeout      string `yaml:"lock_timeout" json:"lock_timeout"`
	SemaphoreTimeout string `yaml:"semaphore_timeout" json:"semaphore_timeout"`
	SemaphoreSlots   int    `yaml:"semaphore_slots" json:"semaphore_slots"`
}

// NewConfig returns the hardcoded defaults from spec §5/§6.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			CustomExtensions:     nil,
			CustomIgnorePatterns: nil,
		},
		Search: SearchConfig{
			HybridMode:  true,
			RRFConstant: 100,
			Threshold:   0.3,
			MaxResults:  50,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "",
		},
		Performance: PerformanceConfig{
			FileConcurrency: min(runtime.NumCPU()*2, 20),
			APIConcurrency:  10,
			MemoryLimitMB:   1536,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Registry: RegistryConfig{
			StoragePath: defaultRegistryPath(),
		},
		Reconciler: ReconcilerConfig{
			Interval:     "5m",
			InitialDelay: "5s",
		},
		Coordinator: CoordinatorConfig{
			LockTimeout:      "30m",
			SemaphoreTimeout: "2h",
			SemaphoreSlots:   4,
		},
	}
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".context", "registry.json")
	}
	return filepath.Join(home, ".context", "registry.json")
}

// GetUserConfigPath follows XDG Base Directory conventions.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codex-index", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codex-index", "config.yaml")
	}
	return filepath.Join(home, ".config", "codex-index", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration for a project directory:
// defaults -> user config -> project config (.codex.yaml) -> env overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".codex.yaml", ".codex.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.CustomExtensions) > 0 {
		c.Paths.CustomExtensions = other.Paths.CustomExtensions
	}
	if len(other.Paths.CustomIgnorePatterns) > 0 {
		c.Paths.CustomIgnorePatterns = append(c.Paths.CustomIgnorePatterns, other.Paths.CustomIgnorePatterns...)
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.Threshold != 0 {
		c.Search.Threshold = other.Search.Threshold
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Performance.FileConcurrency != 0 {
		c.Performance.FileConcurrency = other.Performance.FileConcurrency
	}
	if other.Performance.APIConcurrency != 0 {
		c.Performance.APIConcurrency = other.Performance.APIConcurrency
	}
	if other.Performance.MemoryLimitMB != 0 {
		c.Performance.MemoryLimitMB = other.Performance.MemoryLimitMB
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Registry.StoragePath != "" {
		c.Registry.StoragePath = other.Registry.StoragePath
	}
	if other.Reconciler.Interval != "" {
		c.Reconciler.Interval = other.Reconciler.Interval
	}
	if other.Reconciler.InitialDelay != "" {
		c.Reconciler.InitialDelay = other.Reconciler.InitialDelay
	}
	if other.Coordinator.LockTimeout != "" {
		c.Coordinator.LockTimeout = other.Coordinator.LockTimeout
	}
	if other.Coordinator.SemaphoreTimeout != "" {
		c.Coordinator.SemaphoreTimeout = other.Coordinator.SemaphoreTimeout
	}
	if other.Coordinator.SemaphoreSlots != 0 {
		c.Coordinator.SemaphoreSlots = other.Coordinator.SemaphoreSlots
	}
}

// applyEnvOverrides applies the environment table from spec §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYBRID_MODE"); v != "" {
		c.Search.HybridMode = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("API_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.APIConcurrency = n
		}
	}
	if v := os.Getenv("FILE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.FileConcurrency = n
		}
	}
	if v := os.Getenv("MEMORY_LIMIT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.MemoryLimitMB = n
		}
	}
	if v := os.Getenv("CUSTOM_EXTENSIONS"); v != "" {
		c.Paths.CustomExtensions = splitCSV(v)
	}
	if v := os.Getenv("CUSTOM_IGNORE_PATTERNS"); v != "" {
		c.Paths.CustomIgnorePatterns = append(c.Paths.CustomIgnorePatterns, splitCSV(v)...)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations that would make the pipeline or router
// behave incoherently.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be between 0 and 1, got %f", c.Search.Threshold)
	}
	if c.Performance.MemoryLimitMB < 256 {
		return fmt.Errorf("performance.memory_limit_mb must be >= 256, got %d", c.Performance.MemoryLimitMB)
	}
	if c.Performance.FileConcurrency <= 0 {
		return fmt.Errorf("performance.file_concurrency must be positive, got %d", c.Performance.FileConcurrency)
	}
	if c.Performance.APIConcurrency <= 0 || c.Performance.APIConcurrency > 10 {
		return fmt.Errorf("performance.api_concurrency must be in (0, 10], got %d", c.Performance.APIConcurrency)
	}
	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML persists the configuration as YAML to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
