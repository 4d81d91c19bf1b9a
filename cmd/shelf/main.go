// Package main is the shelf CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/cli"
	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/embedding"
	"github.com/hyperjump/shelf/internal/keyword"
	"github.com/hyperjump/shelf/internal/llm"
	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/recommender"
	"github.com/hyperjump/shelf/internal/server"
	"github.com/hyperjump/shelf/internal/storage"
	"github.com/hyperjump/shelf/internal/watcher"
	"github.com/hyperjump/shelf/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shelf/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the current directory, that file is used instead.
// A missing default config falls back to built-in defaults.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional; it usually carries the provider API key.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "recommend", "similar", "author", "series":
		runQuery(command)
	case "titles":
		runTitles()
	case "stats":
		runStats()
	case "index":
		runIndex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shelf version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	components, err := initializeComponents(context.Background(), cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	rec := components.Recommender

	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	inbox := watcher.NewInbox(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		rec.HandleInboxFile,
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox", zap.Error(err))
		}
		inbox.Sync()
	}

	srv := server.NewServer(rec, &cfg.Server, logger,
		server.WithInbox(inbox),
		server.WithMetrics(m, reg),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	inbox.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := rec.SaveIndex(ctx, ""); err != nil {
		logger.Warn("index save failed", zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
	}
}

// queryUsage is the usage line for each query command.
var queryUsage = map[string]string{
	"recommend": "shelf recommend [flags] <query>",
	"similar":   "shelf similar [flags] <book-id>",
	"author":    "shelf author [flags] <author>",
	"series":    "shelf series [flags] <series>",
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after the positional arguments to the
// front so that flag.Parse sees them; Go's flag package stops at the first
// non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// queryFlags holds the filter flags shared by the query commands. Zero
// values leave the predicate unset.
type queryFlags struct {
	genres    string
	authors   string
	minRating float64
	yearStart int
	yearEnd   int
	language  string
	ebookOnly bool
}

func (q *queryFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&q.genres, "genres", "", "comma-separated genres to keep")
	fs.StringVar(&q.authors, "authors", "", "comma-separated authors to keep")
	fs.Float64Var(&q.minRating, "min-rating", 0, "minimum average rating")
	fs.IntVar(&q.yearStart, "year-start", 0, "earliest publication year")
	fs.IntVar(&q.yearEnd, "year-end", 0, "latest publication year")
	fs.StringVar(&q.language, "language", "", "language code to keep")
	fs.BoolVar(&q.ebookOnly, "ebook", false, "keep ebooks only")
}

// filter returns the filter described by the flags, or nil when none is set.
func (q *queryFlags) filter() *models.QueryFilter {
	f := &models.QueryFilter{
		Genres:    splitList(q.genres),
		Authors:   splitList(q.authors),
		EbookOnly: q.ebookOnly,
	}
	set := len(f.Genres) > 0 || len(f.Authors) > 0 || f.EbookOnly
	if q.minRating > 0 {
		f.MinRating = &q.minRating
		set = true
	}
	if q.yearStart > 0 {
		f.YearStart = &q.yearStart
		set = true
	}
	if q.yearEnd > 0 {
		f.YearEnd = &q.yearEnd
		set = true
	}
	if q.language != "" {
		f.Language = &q.language
		set = true
	}
	if !set {
		return nil
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// queryRoute returns the HTTP route and body for a query command.
func queryRoute(command, subject string, filter *models.QueryFilter, k int) (string, any) {
	switch command {
	case "similar":
		return "/api/v1/books/" + url.PathEscape(subject) + "/similar", map[string]any{"filter": filter, "k": k}
	case "author":
		return "/api/v1/authors/" + url.PathEscape(subject) + "/books", map[string]any{"filter": filter, "k": k}
	case "series":
		return "/api/v1/series/" + url.PathEscape(subject) + "/books", map[string]any{"filter": filter, "k": k}
	default:
		return "/api/v1/recommend", models.RecommendQuery{Query: subject, Filter: filter, K: k}
	}
}

func runQuery(command string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run against local storage)")
	k := fs.Int("k", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var qf queryFlags
	qf.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s\n\n", queryUsage[command])
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	subject := buildQuery(fs.Args())
	if subject == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	filter := qf.filter()

	var resp models.RecommendationResponse
	if *serverURL != "" {
		route, body := queryRoute(command, subject, filter, *k)
		if err := postJSON(*serverURL+route, body, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
			os.Exit(1)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, rec *recommender.Recommender) error {
			var out *models.RecommendationResponse
			var err error
			switch command {
			case "similar":
				out, err = rec.GetSimilarBooks(ctx, subject, filter, *k)
			case "author":
				out, err = rec.GetAuthorRecommendations(ctx, subject, filter, *k)
			case "series":
				out, err = rec.GetSeriesRecommendations(ctx, subject, filter, *k)
			default:
				out, err = rec.GetRecommendations(ctx, subject, filter, *k)
			}
			if err != nil {
				return fmt.Errorf("%s failed: %w", command, err)
			}
			resp = *out
			return nil
		})
	}
	if err := cli.WriteRecommendations(os.Stdout, &resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runTitles() {
	fs := flag.NewFlagSet("titles", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run against local storage)")
	limit := fs.Int("limit", 10, "number of results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	text := buildQuery(fs.Args())
	if text == "" {
		fmt.Println("Usage: shelf titles [flags] <title>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var resp models.TitleSearchResponse
	if *serverURL != "" {
		target := fmt.Sprintf("%s/api/v1/titles?q=%s&limit=%d", *serverURL, url.QueryEscape(text), *limit)
		if err := getJSON(target, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Title lookup failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, rec *recommender.Recommender) error {
			out, err := rec.FindByTitle(ctx, text, *limit)
			if err != nil {
				return fmt.Errorf("title lookup failed: %w", err)
			}
			resp = *out
			return nil
		})
	}
	if err := cli.WriteTitleMatches(os.Stdout, &resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statsRoutes maps each stats subcommand to its API route.
var statsRoutes = map[string]string{
	"genres":    "/api/v1/stats/genres",
	"authors":   "/api/v1/stats/authors",
	"top-rated": "/api/v1/stats/top-rated",
}

func runStats() {
	if len(os.Args) < 3 || statsRoutes[os.Args[2]] == "" {
		fmt.Println("Usage: shelf stats <genres|authors|top-rated> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run against local storage)")
	limit := fs.Int("limit", 10, "number of entries")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[3:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var counts []models.CountEntry
	var books []*models.Record
	if *serverURL != "" {
		param := "k"
		if sub == "top-rated" {
			param = "limit"
		}
		var out struct {
			Genres  []models.CountEntry `json:"genres"`
			Authors []models.CountEntry `json:"authors"`
			Results []*models.Record    `json:"results"`
		}
		target := fmt.Sprintf("%s%s?%s=%d", *serverURL, statsRoutes[sub], param, *limit)
		if err := getJSON(target, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		counts = append(out.Genres, out.Authors...)
		books = out.Results
	} else {
		withLocal(*configPath, func(ctx context.Context, rec *recommender.Recommender) error {
			var err error
			switch sub {
			case "genres":
				counts, err = rec.PopularGenres(ctx, *limit)
			case "authors":
				counts, err = rec.PopularAuthors(ctx, *limit)
			default:
				books, err = rec.TopRated(ctx, *limit)
			}
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			return nil
		})
	}

	switch sub {
	case "genres":
		err = cli.WriteCounts(os.Stdout, "Popular genres", counts, format)
	case "authors":
		err = cli.WriteCounts(os.Stdout, "Popular authors", counts, format)
	default:
		err = cli.WriteBooks(os.Stdout, books, format)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runIndex() {
	if len(os.Args) < 3 {
		printIndexUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run against local storage)")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	path := fs.Arg(0)

	switch sub {
	case "save", "load", "rebuild":
	default:
		fmt.Printf("Unknown index subcommand: %s\n", sub)
		printIndexUsage()
		os.Exit(1)
	}

	if *serverURL != "" {
		var body any
		if sub != "rebuild" {
			body = map[string]string{"path": path}
		}
		var out map[string]string
		if err := postJSON(*serverURL+"/api/v1/index/"+sub, body, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Index %s failed: %v\n", sub, err)
			os.Exit(1)
		}
		fmt.Printf("Index %s\n", out["status"])
		return
	}

	withLocal(*configPath, func(ctx context.Context, rec *recommender.Recommender) error {
		var err error
		switch sub {
		case "save":
			err = rec.SaveIndex(ctx, path)
		case "load":
			err = rec.LoadIndex(ctx, path)
		case "rebuild":
			if err = rec.RebuildIndex(ctx); err == nil {
				// A local rebuild only lasts if it is written out.
				err = rec.SaveIndex(ctx, path)
			}
		}
		if err != nil {
			return fmt.Errorf("index %s failed: %w", sub, err)
		}
		fmt.Printf("Index %s done (%d records)\n", sub, rec.Index().Size())
		return nil
	})
}

func printIndexUsage() {
	fmt.Println("Usage: shelf index <save|load|rebuild> [flags] [path]")
	fmt.Println("  shelf index save [path]     Write the index snapshot")
	fmt.Println("  shelf index load [path]     Replace the index with a snapshot")
	fmt.Println("  shelf index rebuild         Rebuild the index from the catalog")
	fmt.Println("Against a server, path is a snapshot name inside the index directory.")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status recommender.Status
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, rec *recommender.Recommender) error {
			st, err := rec.Status(ctx)
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			status = *st
			return nil
		})
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// withLocal opens the local storage, runs fn and closes everything. Any
// failure exits the process.
func withLocal(configPath string, fn func(ctx context.Context, rec *recommender.Recommender) error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	err = fn(ctx, components.Recommender)
	components.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func postJSON(target string, body, out any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	resp, err := http.Post(target, "application/json", r)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(target string, out any) error {
	resp, err := http.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Catalog     storage.Catalog
	Embedder    embedding.Embedder
	Titles      *keyword.BleveIndex
	Recommender *recommender.Recommender
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = embedding.Close(c.Embedder)
	}
	if c.Titles != nil {
		_ = c.Titles.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	c := &Components{}
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c.Catalog = catalog

	embedder, err := newEmbedder(cfg, logger, m)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	opts := []recommender.Option{recommender.WithLogger(logger), recommender.WithMetrics(m)}
	if cfg.Storage.BleveIndexPath != "" {
		titles, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize title index: %w", err)
		}
		c.Titles = titles
		opts = append(opts, recommender.WithTitleIndex(titles))
	}
	if cfg.Search.Enhancer == "llm" || cfg.Search.Explainer == "llm" {
		client, err := newLLMClient(cfg, logger, m, "")
		if err != nil {
			c.Close()
			return nil, err
		}
		opts = append(opts, recommender.WithLLM(client))
	}

	rec, err := recommender.New(ctx, cfg, c.Catalog, c.Embedder, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize recommender: %w", err)
	}
	c.Recommender = rec
	logger.Info("recommender initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("records", rec.Index().Size()),
		zap.Bool("trained", rec.Index().Trained()))
	return c, nil
}

// newEmbedder builds the configured embedding provider. An unavailable ONNX
// runtime falls back to the hash embedder.
func newEmbedder(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (embedding.Embedder, error) {
	if err := embedding.ValidateProvider(cfg.Embedding.Provider); err != nil {
		return nil, err
	}
	switch cfg.Embedding.Provider {
	case embedding.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Index.Dimensions, cfg.Embedding.MaxTokens)
		if err == nil {
			return e, nil
		}
		logger.Warn("onnx embedder unavailable, falling back to hash",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
	case embedding.ProviderOpenAI:
		if cfg.LLM.EmbeddingModel == "" {
			return nil, fmt.Errorf("llm.embedding_model is required for the openai embedder: %w", models.ErrValidation)
		}
		client, err := newLLMClient(cfg, logger, m, cfg.LLM.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return embedding.NewHashEmbedder(cfg.Index.Dimensions), nil
}

func newLLMClient(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, embeddingModel string) (*llm.Client, error) {
	client, err := llm.New(llm.Config{
		APIKey:             cfg.LLM.APIKey(),
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		EmbeddingModel:     embeddingModel,
		Dimensions:         cfg.Index.Dimensions,
		EnhanceTemperature: cfg.LLM.EnhanceTemperature,
		ExplainTemperature: cfg.LLM.ExplainTemperature,
		Logger:             logger,
		Metrics:            m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client (set %s): %w", cfg.LLM.APIKeyEnv, err)
	}
	return client, nil
}

func printUsage() {
	fmt.Println(`shelf - Book recommendation and similarity search

Usage:
  shelf server [flags]                  Start the HTTP server
  shelf recommend [flags] <query>       Recommend books for a free-text query
  shelf similar [flags] <book-id>       Books similar to a catalog book
  shelf author [flags] <author>         Recommendations from an author
  shelf series [flags] <series>         Recommendations for a series
  shelf titles [flags] <title>          Look up books by title
  shelf stats <genres|authors|top-rated> Catalog statistics
  shelf index <save|load|rebuild>       Manage the index snapshot
  shelf status [flags]                  Show catalog and index status
  shelf version                         Show version
  shelf help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shelf/config.yaml)
  --debug            Enable debug logging

Query Flags (recommend, similar, author, series):
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run against local storage.
  --config string    Config file path (local mode)
  --k int            Number of results (default from config)
  --genres string    Comma-separated genres to keep
  --authors string   Comma-separated authors to keep
  --min-rating float Minimum average rating
  --year-start int   Earliest publication year
  --year-end int     Latest publication year
  --language string  Language code to keep
  --ebook            Keep ebooks only
  --output string    Output format: text or json (default: text)

Examples:
  shelf server
  shelf recommend "space opera with political intrigue"
  shelf recommend --genres fantasy --min-rating 4 dragons and wizards
  shelf similar --k 5 book-123
  shelf author "Ursula K. Le Guin"
  shelf index save
  shelf status --output json`)
}
