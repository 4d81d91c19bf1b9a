// Package config provides configuration loading and structs for the shelf server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                  `yaml:"debug"`
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Index     IndexConfig           `yaml:"index"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	LLM       LLMConfig             `yaml:"llm"`
	Search    SearchConfig          `yaml:"search"`
	Ranking   ranking.RankingConfig `yaml:"ranking"`
	Watch     WatchConfig           `yaml:"watch"`
}

// WatchConfig holds the record inbox settings. Files dropped into the
// directories are read as JSONL record batches.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database and indices.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	IndexPath      string `yaml:"index_path"` // snapshot prefix; .flat, .ivf and .mapping are appended
}

// IndexConfig holds similarity index settings.
type IndexConfig struct {
	Dimensions   int           `yaml:"dimensions"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	NList        int           `yaml:"nlist"`
	NProbe       int           `yaml:"nprobe"`
	TrainSample  int           `yaml:"train_sample"`
	AddChunkSize int           `yaml:"add_chunk_size"`
	SearchMode   string        `yaml:"search_mode"` // exact | approximate
	LoadExisting *bool         `yaml:"load_existing"`
}

// LoadExistingOrDefault reports whether startup restores an existing snapshot; defaults to true.
func (c *IndexConfig) LoadExistingOrDefault() bool {
	if c.LoadExisting != nil {
		return *c.LoadExisting
	}
	return true
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // hash | onnx | openai
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
	CacheSize int    `yaml:"cache_size"`
}

// LLMConfig holds the OpenAI-compatible provider settings.
type LLMConfig struct {
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	Model              string  `yaml:"model"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EnhanceTemperature float32 `yaml:"enhance_temperature"`
	ExplainTemperature float32 `yaml:"explain_temperature"`
}

// APIKey reads the key from the configured environment variable.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// SearchConfig holds query pipeline settings.
type SearchConfig struct {
	DefaultK           int           `yaml:"default_k"`
	RetrievalFactor    int           `yaml:"retrieval_factor"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
	ExplainConcurrency int           `yaml:"explain_concurrency"`
	MinRatings         *int64        `yaml:"min_ratings"`
	LanguageFilter     *string       `yaml:"language_filter"`
	Enhancer           string        `yaml:"enhancer"`  // llm | keyword | none
	Explainer          string        `yaml:"explainer"` // llm | template
}

// MinRatingsOrDefault returns the startup ratings-count threshold; defaults to 100.
func (c *SearchConfig) MinRatingsOrDefault() int64 {
	if c.MinRatings != nil {
		return *c.MinRatings
	}
	return 100
}

// LanguageFilterOrDefault returns the startup language filter; defaults to "en".
// An explicit empty string keeps every language.
func (c *SearchConfig) LanguageFilterOrDefault() string {
	if c.LanguageFilter != nil {
		return *c.LanguageFilter
	}
	return "en"
}

// Validate rejects settings the index and pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Index.Dimensions <= 0 {
		return fmt.Errorf("index.dimensions must be positive, got %d: %w", c.Index.Dimensions, models.ErrValidation)
	}
	if c.Index.CacheSize <= 0 {
		return fmt.Errorf("index.cache_size must be positive, got %d: %w", c.Index.CacheSize, models.ErrValidation)
	}
	if c.Index.CacheTTL <= 0 {
		return fmt.Errorf("index.cache_ttl must be positive, got %s: %w", c.Index.CacheTTL, models.ErrValidation)
	}
	if c.Search.MinRatingsOrDefault() < 0 {
		return fmt.Errorf("search.min_ratings must not be negative: %w", models.ErrValidation)
	}
	switch c.Index.SearchMode {
	case "exact", "approximate":
	default:
		return fmt.Errorf("index.search_mode %q is not exact or approximate: %w", c.Index.SearchMode, models.ErrValidation)
	}
	switch c.Search.Enhancer {
	case "llm", "keyword", "none":
	default:
		return fmt.Errorf("search.enhancer %q is not llm, keyword or none: %w", c.Search.Enhancer, models.ErrValidation)
	}
	switch c.Search.Explainer {
	case "llm", "template":
	default:
		return fmt.Errorf("search.explainer %q is not llm or template: %w", c.Search.Explainer, models.ErrValidation)
	}
	return nil
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Keys absent from the file keep the ranking defaults, so an explicit
	// zero weight survives.
	cfg := Config{Ranking: *ranking.DefaultRankingConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is left alone.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
