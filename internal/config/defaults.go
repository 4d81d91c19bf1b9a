package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shelf/data/db/catalog.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/shelf/data/indices/bleve"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/shelf/data/indices/books"
	}
	if cfg.Index.Dimensions == 0 {
		cfg.Index.Dimensions = 384
	}
	if cfg.Index.CacheSize == 0 {
		cfg.Index.CacheSize = 1000
	}
	if cfg.Index.CacheTTL == 0 {
		cfg.Index.CacheTTL = time.Hour
	}
	if cfg.Index.NList == 0 {
		cfg.Index.NList = 100
	}
	if cfg.Index.NProbe == 0 {
		cfg.Index.NProbe = 10
	}
	if cfg.Index.AddChunkSize == 0 {
		cfg.Index.AddChunkSize = 100
	}
	if cfg.Index.SearchMode == "" {
		cfg.Index.SearchMode = "exact"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/shelf/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama-3.1-8b-instant"
	}
	if cfg.LLM.EnhanceTemperature == 0 {
		cfg.LLM.EnhanceTemperature = 0.3
	}
	if cfg.LLM.ExplainTemperature == 0 {
		cfg.LLM.ExplainTemperature = 0.7
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.RetrievalFactor == 0 {
		cfg.Search.RetrievalFactor = 2
	}
	if cfg.Search.ProviderTimeout == 0 {
		cfg.Search.ProviderTimeout = 5 * time.Second
	}
	if cfg.Search.ExplainConcurrency == 0 {
		cfg.Search.ExplainConcurrency = 4
	}
	if cfg.Search.Enhancer == "" {
		cfg.Search.Enhancer = "keyword"
	}
	if cfg.Search.Explainer == "" {
		cfg.Search.Explainer = "template"
	}
	cfg.Ranking.ApplyDefaults()
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jsonl", ".ndjson"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		f := false
		cfg.Watch.Recursive = &f
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
