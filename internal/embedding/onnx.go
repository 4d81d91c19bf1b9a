//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/pkg/utils"
)

const defaultMaxTokens = 256

// Tensor names of a sentence-transformer export with a pooled output.
var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"output"}
)

// ONNXEmbedder embeds book descriptions and queries with a local
// sentence-transformer model through ONNX Runtime. Wrap it in a
// CachedEmbedder to memoize repeated queries.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int

	// inputs are ids, attention mask and token types, in onnxInputNames order.
	inputs [3]*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath. The model output must have
// the configured dimensions. A non-positive maxTokens uses 256.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder dimensions must be positive, got %d: %w", dimensions, models.ErrValidation)
	}
	if modelPath == "" {
		return nil, fmt.Errorf("onnx embedder needs embedding.model_path: %w", models.ErrValidation)
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{tokenizer: &SimpleTokenizer{}, dimensions: dimensions, maxTokens: maxTokens}
	seqShape := ort.NewShape(1, int64(maxTokens))
	for i := range e.inputs {
		t, err := ort.NewEmptyTensor[int64](seqShape)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("allocate %s tensor: %w", onnxInputNames[i], err)
		}
		e.inputs[i] = t
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	e.output = out

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, onnxOutputNames,
		inputs, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("load onnx model %s: %w", modelPath, err)
	}
	e.session = session
	return e, nil
}

// Embed returns the unit-length embedding for text. The session reuses its
// tensors, so runs are serialized.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("onnx embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	for i, data := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}

	vec := append([]float32(nil), e.output.GetData()[:e.dimensions]...)
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the model output size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and its tensors. It is safe to call twice.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for i, t := range e.inputs {
		if t != nil {
			_ = t.Destroy()
			e.inputs[i] = nil
		}
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
