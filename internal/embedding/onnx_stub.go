//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXEmbedder stub type when built without CGO (see onnx.go for the real
// implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO.
func NewONNXEmbedder(_ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

var errONNXNoCGO = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// Embed is never reachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errONNXNoCGO
}

// EmbedBatch is never reachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errONNXNoCGO
}

// Dimensions is never reachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) Dimensions() int { return 0 }

// Close is never reachable: NewONNXEmbedder always errors without CGO.
func (e *ONNXEmbedder) Close() error { return nil }
