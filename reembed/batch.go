package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/core"
)

// BatchProcessor computes embeddings for batches of chunks.
type BatchProcessor struct {
	embedder  ai.Embedder
	retry     ai.RetryPolicy
	normalize bool
}

// NewBatchProcessor creates a new batch processor.
// Embedding calls are retried according to retry. When normalize is set
// every vector is scaled to unit length.
func NewBatchProcessor(embedder ai.Embedder, retry ai.RetryPolicy, normalize bool) *BatchProcessor {
	return &BatchProcessor{
		embedder:  embedder,
		retry:     retry,
		normalize: normalize,
	}
}

// Process returns one embedding per chunk, in batch order. Nothing is
// written; the caller swaps all embeddings at once.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := ai.Retry(ctx, bp.retry, func(ctx context.Context) ([][]float32, error) {
		return bp.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed chunks %d-%d: %w",
			core.ErrCollaborator, chunks[0].Id, chunks[len(chunks)-1].Id, err)
	}

	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: %w: expected %d embeddings, got %d",
			core.ErrConsistency, core.ErrLengthMismatch, len(chunks), len(embeddings))
	}

	if bp.normalize {
		embeddings = ai.NormalizeAll(embeddings)
	}
	return embeddings, nil
}
