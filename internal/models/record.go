// Package models defines core data structures for catalog records, queries, and ranked results.
package models

import "time"

// Record is a catalog entry. Book fields live in Metadata and are read through the accessors in book.go.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a copy of r that shares no mutable state with it.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	return &out
}

// WithoutEmbedding returns a shallow copy of r with the embedding dropped.
func (r *Record) WithoutEmbedding() *Record {
	out := *r
	out.Embedding = nil
	return &out
}

// RecordInput is the request body for adding or updating a record.
type RecordInput struct {
	ID        string         `json:"id,omitempty"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// Record converts the input to a Record stamped with now.
func (in *RecordInput) Record(now time.Time) *Record {
	return &Record{
		ID:        in.ID,
		Text:      in.Text,
		Metadata:  in.Metadata,
		Embedding: in.Embedding,
		CreatedAt: now,
	}
}
