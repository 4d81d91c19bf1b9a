// Package storage defines the catalog store that holds records by id.
package storage

import (
	"context"

	"github.com/hyperjump/shelf/internal/models"
)

// Catalog is the id → record store. List returns records in insertion order;
// Put on an existing id replaces it without moving it.
type Catalog interface {
	Get(ctx context.Context, id string) (*models.Record, error)
	GetMany(ctx context.Context, ids []string) (map[string]*models.Record, error)
	Put(ctx context.Context, records []*models.Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
