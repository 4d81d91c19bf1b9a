//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ErrONNXUnavailable is returned by the ONNX embedder in builds without CGO.
var ErrONNXUnavailable = errors.New("onnx embedder needs a cgo build linked against onnxruntime")

// ONNXEmbedder is unavailable without CGO.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails with ErrONNXUnavailable.
func NewONNXEmbedder(string, int, int) (*ONNXEmbedder, error) {
	return nil, ErrONNXUnavailable
}

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrONNXUnavailable
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Close() error { return nil }
