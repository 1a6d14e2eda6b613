// Package embedding provides text embedding for topic vectors, via ONNX
// Runtime when available and a deterministic fallback otherwise.
package embedding

import "context"

// Embedder produces unit-scale vector embeddings for text. Implementations
// are constructed once at startup and injected; they must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
