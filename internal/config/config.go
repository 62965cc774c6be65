package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the vistry service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector index connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds object storage settings. The ingest bucket carries the
// raw catalog uploads, the derived batches, and the product images; the
// embeddings bucket carries the embedded batches.
type StorageConfig struct {
	Endpoint         string `yaml:"endpoint"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	UseSSL           bool   `yaml:"use_ssl"`
	Region           string `yaml:"region"`
	IngestBucket     string `yaml:"ingest_bucket"`
	EmbeddingsBucket string `yaml:"embeddings_bucket"`
	IngestPrefix     string `yaml:"ingest_prefix"`
	BatchPrefix      string `yaml:"batch_prefix"`
	SignedURLTTLSec  int    `yaml:"signed_url_ttl_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // titan (multimodal, default), openai (text-only)
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// IndexConfig holds vector index schema settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// PipelineConfig holds ingestion pipeline settings. Concurrency values cap
// the number of simultaneously running invocations per stage; the stage
// timeout is the per-invocation wall-clock budget.
type PipelineConfig struct {
	BatchSize           int `yaml:"batch_size"`
	StageTimeoutSec     int `yaml:"stage_timeout_sec"`
	BatcherConcurrency  int `yaml:"batcher_concurrency"`
	EmbedderConcurrency int `yaml:"embedder_concurrency"`
	IndexerConcurrency  int `yaml:"indexer_concurrency"`
}

// SearchConfig holds query-time settings. The timeout is the per-request
// wall-clock budget for the synchronous search path; it must stay below the
// HTTP write timeout so the caller receives a JSON error instead of a
// dropped connection.
type SearchConfig struct {
	ResultSize int `yaml:"result_size"`
	KNNK       int `yaml:"knn_k"`
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Search is a synchronous user-facing call; its budget stays short.
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.IngestPrefix == "" {
		c.Storage.IngestPrefix = "ingest/"
	}
	if c.Storage.BatchPrefix == "" {
		c.Storage.BatchPrefix = "batch/"
	}
	if c.Storage.SignedURLTTLSec <= 0 {
		c.Storage.SignedURLTTLSec = 3600
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "titan"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Index.Name == "" {
		c.Index.Name = "products"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "vistry:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 500
	}
	if c.Pipeline.StageTimeoutSec <= 0 {
		c.Pipeline.StageTimeoutSec = 300
	}
	if c.Pipeline.BatcherConcurrency <= 0 {
		c.Pipeline.BatcherConcurrency = 2
	}
	if c.Pipeline.EmbedderConcurrency <= 0 {
		// Embedding dominates pipeline latency, so it gets the widest cap.
		c.Pipeline.EmbedderConcurrency = 10
	}
	if c.Pipeline.IndexerConcurrency <= 0 {
		c.Pipeline.IndexerConcurrency = 3
	}
	if c.Search.ResultSize <= 0 {
		c.Search.ResultSize = 5
	}
	if c.Search.KNNK <= 0 {
		c.Search.KNNK = 5
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if c.Storage.IngestBucket == "" {
		return fmt.Errorf("storage.ingest_bucket is required")
	}
	if c.Storage.EmbeddingsBucket == "" {
		return fmt.Errorf("storage.embeddings_bucket is required")
	}
	switch c.Embedding.Provider {
	case "titan", "openai":
		// ok
	default:
		return fmt.Errorf("embedding.provider must be \"titan\" or \"openai\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if !strings.HasSuffix(c.Storage.IngestPrefix, "/") || !strings.HasSuffix(c.Storage.BatchPrefix, "/") {
		return fmt.Errorf("storage prefixes must end with \"/\"")
	}
	if c.Storage.IngestPrefix == c.Storage.BatchPrefix {
		return fmt.Errorf("storage.ingest_prefix and storage.batch_prefix must differ")
	}
	if c.Search.TimeoutSec >= c.HTTP.WriteTimeoutSec {
		return fmt.Errorf("search.timeout_sec (%d) must be below http.write_timeout_sec (%d)",
			c.Search.TimeoutSec, c.HTTP.WriteTimeoutSec)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
