package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/pkg/utils"
)

// maxBatchVars keeps IN (...) lists under SQLite's bound-variable limit.
const maxBatchVars = 500

// SQLiteCatalog implements Catalog using SQLite. The seq column preserves insertion order.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a :memory: database is per-connection, and writes serialize anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const upsertRecord = `INSERT INTO records (id, text, metadata, embedding, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		metadata = excluded.metadata,
		embedding = excluded.embedding,
		created_at = excluded.created_at`

// Get returns a record by id.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, metadata, embedding, created_at FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetMany returns the records found among ids. Missing ids are absent from the map.
func (s *SQLiteCatalog) GetMany(ctx context.Context, ids []string) (map[string]*models.Record, error) {
	out := make(map[string]*models.Record, len(ids))
	for start := 0; start < len(ids); start += maxBatchVars {
		end := start + maxBatchVars
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := `SELECT id, text, metadata, embedding, created_at FROM records WHERE id IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[r.ID] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Put upserts records in a single transaction.
func (s *SQLiteCatalog) Put(ctx context.Context, records []*models.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a record by id.
func (s *SQLiteCatalog) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	return nil
}

// List returns all records in insertion order.
func (s *SQLiteCatalog) List(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding, created_at FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of records.
func (s *SQLiteCatalog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []*models.Record) error {
	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %q: %w", r.ID, err)
		}
		var embedding []byte
		if r.Embedding != nil {
			embedding = utils.Float32sToBytes(r.Embedding)
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, string(metadataJSON), embedding, created); err != nil {
			return fmt.Errorf("failed to store record %q: %w", r.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r            models.Record
		metadataJSON sql.NullString
		embedding    []byte
	)
	if err := row.Scan(&r.ID, &r.Text, &metadataJSON, &embedding, &r.CreatedAt); err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if embedding != nil {
		r.Embedding = utils.BytesToFloat32s(embedding)
	}
	return &r, nil
}
