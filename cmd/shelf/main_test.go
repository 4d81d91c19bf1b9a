package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/embedding"
	"github.com/hyperjump/shelf/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"dragons and wizards", "-k", "5"},
			expected: []string{"-k", "5", "dragons and wizards"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "5", "dragons and wizards"},
			expected: []string{"-k", "5", "dragons and wizards"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"dragons and wizards"},
			expected: []string{"dragons and wizards"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"space", "opera", "-genres", "sci-fi"},
			expected: []string{"-genres", "sci-fi", "space", "opera"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"dune"}, "dune"},
		{"multiple words", []string{"space", "opera"}, "space opera"},
		{"single quoted phrase", []string{"space opera"}, "space opera"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestQueryFlags_filter(t *testing.T) {
	rating := 4.0
	year := 1990
	lang := "en"
	tests := []struct {
		name  string
		flags queryFlags
		want  *models.QueryFilter
	}{
		{"no flags", queryFlags{}, nil},
		{"blank genres", queryFlags{genres: " , "}, nil},
		{
			name:  "lists are split and trimmed",
			flags: queryFlags{genres: "fantasy, sci-fi", authors: "Frank Herbert"},
			want:  &models.QueryFilter{Genres: []string{"fantasy", "sci-fi"}, Authors: []string{"Frank Herbert"}},
		},
		{
			name:  "scalar predicates",
			flags: queryFlags{minRating: 4, yearStart: 1990, language: "en", ebookOnly: true},
			want:  &models.QueryFilter{MinRating: &rating, YearStart: &year, Language: &lang, EbookOnly: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.flags.filter()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filter() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestQueryRoute(t *testing.T) {
	tests := []struct {
		command string
		subject string
		want    string
	}{
		{"recommend", "space opera", "/api/v1/recommend"},
		{"similar", "book-1", "/api/v1/books/book-1/similar"},
		{"author", "Frank Herbert", "/api/v1/authors/Frank%20Herbert/books"},
		{"series", "Dune", "/api/v1/series/Dune/books"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, body := queryRoute(tt.command, tt.subject, nil, 5)
			if got != tt.want {
				t.Errorf("queryRoute() = %q, want %q", got, tt.want)
			}
			if body == nil {
				t.Error("body should not be nil")
			}
		})
	}
	_, body := queryRoute("recommend", "space opera", nil, 3)
	q, ok := body.(models.RecommendQuery)
	if !ok || q.Query != "space opera" || q.K != 3 {
		t.Errorf("recommend body = %#v", body)
	}
}

func TestDecodeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"status":"saved"}`))
		case "/api-error":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"book not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	var out map[string]string
	if err := postJSON(srv.URL+"/ok", map[string]string{"path": ""}, &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "saved" {
		t.Errorf("status = %q, want saved", out["status"])
	}

	err := getJSON(srv.URL+"/api-error", &out)
	if err == nil || !strings.Contains(err.Error(), "404: book not found") {
		t.Errorf("getJSON error = %v, want the api error message", err)
	}
	err = postJSON(srv.URL+"/plain", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "500: boom") {
		t.Errorf("postJSON error = %v, want the raw body", err)
	}
}

func TestNewEmbedder(t *testing.T) {
	t.Run("hash", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Provider = embedding.ProviderHash
		e, err := newEmbedder(cfg, zap.NewNop(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if e.Dimensions() != cfg.Index.Dimensions {
			t.Errorf("Dimensions() = %d, want %d", e.Dimensions(), cfg.Index.Dimensions)
		}
	})
	t.Run("onnx without model falls back to hash", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Provider = embedding.ProviderONNX
		cfg.Embedding.ModelPath = ""
		e, err := newEmbedder(cfg, zap.NewNop(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := e.(*embedding.HashEmbedder); !ok {
			t.Errorf("embedder = %T, want *embedding.HashEmbedder", e)
		}
	})
	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Provider = "word2vec"
		if _, err := newEmbedder(cfg, zap.NewNop(), nil); !errors.Is(err, models.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
	t.Run("openai without embedding model", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Provider = embedding.ProviderOpenAI
		if _, err := newEmbedder(cfg, zap.NewNop(), nil); !errors.Is(err, models.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
	t.Run("openai without api key", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedding.Provider = embedding.ProviderOpenAI
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
		cfg.LLM.APIKeyEnv = "SHELF_TEST_UNSET_KEY"
		t.Setenv("SHELF_TEST_UNSET_KEY", "")
		if _, err := newEmbedder(cfg, zap.NewNop(), nil); !errors.Is(err, models.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Index.Dimensions = 32
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	cfg.Storage.IndexPath = filepath.Join(dir, "books")

	c, err := initializeComponents(t.Context(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Recommender == nil || c.Titles == nil {
		t.Fatal("recommender and title index should be initialized")
	}
	st, err := c.Recommender.Status(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if st.Records != 0 || st.Indexed != 0 {
		t.Errorf("empty catalog status = %+v", st)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
index:
  dimensions: 64
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir may sit behind a symlink (macOS /var -> /private/var).
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Index.Dimensions != 64 {
		t.Errorf("unexpected config from cwd config.yaml: debug=%t dims=%d", cfg.Debug, cfg.Index.Dimensions)
	}
}

func TestLoadConfig_defaultsWithoutFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	t.Chdir(t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Server.Port != 8080 || cfg.Index.SearchMode != "exact" {
		t.Errorf("expected built-in defaults, got %+v", cfg.Server)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./catalog.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "catalog.db") {
		t.Errorf("database path = %s, want it resolved against the config dir", cfg.Storage.DatabasePath)
	}
}
