package storage

import (
	"context"

	"github.com/poiesic/ragfuse/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// ChunkRepository persists corpus chunks.
// Chunks are append-only: IDs are assigned by the caller and are never reused.
type ChunkRepository interface {
	Repository

	// AddChunks stores chunks atomically. Either all chunks are written or none.
	// Returns ErrDuplicateKey if any chunk ID is already stored.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// ForEachChunk calls fn for every stored chunk in ascending ID order.
	// Iteration stops at the first error returned by fn.
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error

	// GetChunksAfter returns up to limit chunks with ID > afterID, in ID order.
	// Use afterID = 0 with first = true to start from the beginning.
	GetChunksAfter(ctx context.Context, afterID core.ID, first bool, limit int) ([]*core.Chunk, error)

	// UpdateEmbeddings replaces the embeddings of existing chunks atomically.
	// Texts are never modified. Returns ErrNotFound if any chunk doesn't exist.
	UpdateEmbeddings(ctx context.Context, chunks ...*core.Chunk) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}

// EmbeddingCache stores embeddings keyed by a content hash of model and text.
// Cache entries never change retrieval results.
type EmbeddingCache interface {
	// GetEmbeddings returns the cached embeddings for the given keys.
	// Keys without an entry are absent from the result.
	GetEmbeddings(ctx context.Context, keys ...core.ID) (map[core.ID][]float32, error)

	// PutEmbeddings stores embeddings, overwriting existing entries.
	PutEmbeddings(ctx context.Context, entries map[core.ID][]float32) error
}

// MetadataRepository persists corpus-wide metadata.
type MetadataRepository interface {
	// SaveMetadata persists meta and sets its UpdatedAt timestamp.
	SaveMetadata(ctx context.Context, meta *core.CorpusMeta) error

	// LoadMetadata retrieves the corpus metadata.
	// Returns nil, nil if none has been saved.
	LoadMetadata(ctx context.Context) (*core.CorpusMeta, error)
}

// CacheKey derives the embedding cache key for text embedded by model.
func CacheKey(model, text string) core.ID {
	return core.IDFromContent(model + "\x00" + text)
}
