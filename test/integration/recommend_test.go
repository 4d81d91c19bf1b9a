// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/config"
	"github.com/hyperjump/shelf/internal/embedding"
	"github.com/hyperjump/shelf/internal/keyword"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/internal/recommender"
	"github.com/hyperjump/shelf/internal/server"
	"github.com/hyperjump/shelf/internal/storage"
)

func TestIntegration_RecommendOverHTTP(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	cfg.Storage.IndexPath = filepath.Join(dir, "books")
	cfg.Index.Dimensions = 64

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer catalog.Close()

	titles, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	defer titles.Close()

	embedder := embedding.NewCachedEmbedder(embedding.NewHashEmbedder(cfg.Index.Dimensions), 100)
	ctx := context.Background()
	rec, err := recommender.New(ctx, cfg, catalog, embedder, recommender.WithTitleIndex(titles))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.NewServer(rec, &cfg.Server, zap.NewNop()).Handler())
	defer srv.Close()

	book := func(id, title, author, genre, description string) *models.RecordInput {
		return &models.RecordInput{
			ID:   id,
			Text: description,
			Metadata: map[string]any{
				"title":          title,
				"author":         author,
				"genres":         []string{genre},
				"description":    description,
				"average_rating": 4.2,
				"ratings_count":  12000,
			},
		}
	}
	body, _ := json.Marshal(map[string]any{"records": []*models.RecordInput{
		book("ml", "Learning Machines", "Ada Byte", "science", "Machine learning algorithms learn from data."),
		book("sea", "Whale Roads", "Finn Gale", "adventure", "Sailors chase whales across stormy northern seas."),
	}})
	resp, err := http.Post(srv.URL+"/api/v1/records", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add records status = %d", resp.StatusCode)
	}

	body, _ = json.Marshal(models.RecommendQuery{Query: "machine learning algorithms", K: 1})
	resp, err = http.Post(srv.URL+"/api/v1/recommend", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recommend status = %d", resp.StatusCode)
	}
	var out models.RecommendationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || out.Results[0].ID != "ml" {
		t.Errorf("expected ml as the only result, got %+v", out.Results)
	}

	// Both records reached the SQLite catalog behind the index.
	n, err := catalog.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("catalog count = %d, want 2", n)
	}
}
