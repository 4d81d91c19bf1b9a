package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shelf/internal/models"
)

func book(id, title string, vec ...float32) *models.Record {
	return &models.Record{
		ID:        id,
		Text:      title + " description",
		Metadata:  map[string]any{"title": title, "genres": []any{"fantasy"}, "ratings_count": 120},
		Embedding: vec,
	}
}

func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	sqlite, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Catalog{
		"memory": NewMemoryCatalog(),
		"sqlite": sqlite,
	}
}

func TestCatalog_CRUD(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := c.Put(ctx, []*models.Record{book("a", "Alpha", 1, 0), book("b", "Beta", 0, 1)}); err != nil {
				t.Fatal(err)
			}
			got, err := c.Get(ctx, "a")
			if err != nil {
				t.Fatal(err)
			}
			if got.Title() != "Alpha" || got.RatingsCount() != 120 {
				t.Errorf("got %+v", got)
			}
			if len(got.Embedding) != 2 || got.Embedding[0] != 1 {
				t.Errorf("embedding = %v", got.Embedding)
			}
			if got.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}

			if _, err := c.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("Get(missing) = %v", err)
			}

			// Upsert keeps position.
			if err := c.Put(ctx, []*models.Record{book("a", "Alpha 2"), book("c", "Gamma")}); err != nil {
				t.Fatal(err)
			}
			list, err := c.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, r := range list {
				ids = append(ids, r.ID)
			}
			if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
				t.Errorf("List order = %v", ids)
			}
			if list[0].Title() != "Alpha 2" {
				t.Errorf("upsert did not replace: %q", list[0].Title())
			}

			if err := c.Delete(ctx, "b"); err != nil {
				t.Fatal(err)
			}
			if err := c.Delete(ctx, "b"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("second Delete = %v", err)
			}
			n, err := c.Count(ctx)
			if err != nil || n != 2 {
				t.Errorf("Count = %d, %v", n, err)
			}
		})
	}
}

func TestCatalog_GetMany(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = c.Put(ctx, []*models.Record{book("a", "A"), book("b", "B")})
			m, err := c.GetMany(ctx, []string{"a", "zzz", "b"})
			if err != nil {
				t.Fatal(err)
			}
			if len(m) != 2 || m["a"] == nil || m["b"] == nil {
				t.Errorf("GetMany = %v", m)
			}
		})
	}
}

func TestMemoryCatalog_CopiesRecords(t *testing.T) {
	c := NewMemoryCatalog()
	ctx := context.Background()
	r := book("a", "A", 1, 2)
	_ = c.Put(ctx, []*models.Record{r})
	r.Embedding[0] = 99
	got, _ := c.Get(ctx, "a")
	if got.Embedding[0] != 1 {
		t.Error("stored record aliases caller's slice")
	}
	got.Metadata["title"] = "changed"
	again, _ := c.Get(ctx, "a")
	if again.Title() != "A" {
		t.Error("returned record aliases stored metadata")
	}
}

func TestNewSQLiteCatalog_InMemory(t *testing.T) {
	c, err := NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()
	if err := c.Put(ctx, []*models.Record{book("a", "A")}); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Errorf("Count = %d", n)
	}
}
