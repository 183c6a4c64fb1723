package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts,
	// all with the same dimensionality.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator synthesizes an answer from a prompt.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate returns the completion for prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Reranker scores candidate documents against a query with a cross-encoder.
// Implementations must be thread-safe for concurrent use.
type Reranker interface {
	// Rerank scores documents for query. Each result names the position of
	// the document it scores in the documents slice. At most topN results
	// are returned; fewer is allowed.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the answer generation service.
	Generator() Generator

	// Reranker returns the rerank service, or nil when reranking is not configured.
	Reranker() Reranker

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
