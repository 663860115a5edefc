// Package embed provides a text embedding interface used by the
// semantic deduplication pass.
//
// An Embedder converts text into dense vector representations
// (embeddings) suitable for near-duplicate detection and clustering.
//
// # Implementations
//
//   - [OpenAI]: any OpenAI-compatible embeddings API
//   - [Cache]: write-through cache around another Embedder
//
// # Quick Start
//
//	e := embed.NewOpenAI("sk-xxx", embed.WithModel(embed.ModelOpenAI3Small))
//	vec, err := e.Embed(ctx, "hello world")
//
//	vecs, err := e.EmbedBatch(ctx, []string{"hello", "world"})
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts, in input
	// order. Implementations may split large batches into smaller API
	// calls transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	// Zero means the model's native dimensionality.
	Dimension() int

	// Model returns the embedding model identifier. Cache keys include
	// it, so switching models never reuses stale vectors.
	Model() string
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embed: empty input")
)
