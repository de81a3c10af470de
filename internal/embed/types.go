// Package embed provides the embedding collaborator client.
// Embeddings are computed by a remote OpenAI-compatible service; this
// package only calls it and caches the results.
package embed

import (
	"context"
)

// Cache configuration constants.
const (
	// DefaultCacheSize is the default number of query embeddings to cache.
	// Paraphrase branches re-embed recurring user questions, so even a
	// small cache absorbs most repeated traffic.
	DefaultCacheSize = 1000
)

// Embedder generates vector embeddings for text.
// Implementations must be safe for concurrent use: the fanout coordinator
// embeds all paraphrases of a query in parallel.
type Embedder interface {
	// Embed generates an embedding for a single text.
	// Empty text is rejected as invalid input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
