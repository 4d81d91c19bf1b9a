// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperjump/shelf/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedAll embeds texts in order and stops at the first failure.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) != e.Dimensions() {
			return nil, &models.DimensionError{Expected: e.Dimensions(), Got: len(v)}
		}
		out[i] = v
	}
	return out, nil
}

// Close closes e if it holds resources.
func Close(e Embedder) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Provider names accepted by the embedding.provider setting.
const (
	ProviderHash   = "hash"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// ValidateProvider rejects unknown provider names.
func ValidateProvider(name string) error {
	switch name {
	case ProviderHash, ProviderONNX, ProviderOpenAI:
		return nil
	default:
		return fmt.Errorf("unknown embedding provider %q (supported: hash, onnx, openai): %w", name, models.ErrValidation)
	}
}
