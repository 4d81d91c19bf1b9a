package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/shelf/pkg/utils"
)

// HashEmbedder is a deterministic feature-hashing embedder. Each normalized
// word adds ±1 to one hashed dimension, so texts sharing words point the same
// way. It needs no model and is used for tests and offline runs.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder. Non-positive dimensions default to 384.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length hashed bag of words for text. Text with no
// words maps to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(utils.NormalizeText(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		emb[sum%uint64(e.dimensions)] += sign
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}
