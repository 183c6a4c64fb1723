package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/chunker"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/poiesic/ragfuse/storage"
)

const (
	// DefaultChunkSize is the chunk size used when a request leaves it unset.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the overlap used by NewRequest.
	DefaultChunkOverlap = 50
	// DefaultBatchSize is the number of chunks sent per embedding call.
	DefaultBatchSize = 32
)

// Request describes one ingestion.
type Request struct {
	Text string
	// Mode is "fixed" or "paragraph"; empty selects fixed.
	Mode string
	// ChunkSize is the maximum chunk length in characters; 0 selects DefaultChunkSize.
	ChunkSize int
	// ChunkOverlap is the overlap budget in characters. Zero carries nothing.
	ChunkOverlap int
}

// NewRequest returns a fixed-mode request with the default chunk size and overlap.
func NewRequest(text string) Request {
	return Request{
		Text:         text,
		Mode:         string(chunker.ModeFixed),
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Pipeline orchestrates chunking, embedding and corpus appends.
type Pipeline struct {
	store     *corpus.Store
	pool      *ants.Pool
	embedding *embeddingProcessor
	normalize bool
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets the number of chunks per embedding call.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		p.embedding.batchSize = size
		return nil
	}
}

// WithRetryPolicy sets the retry policy for embedding calls.
func WithRetryPolicy(policy ai.RetryPolicy) Option {
	return func(p *Pipeline) error {
		if policy.MaxAttempts < 1 {
			return ai.ErrInvalidMaxAttempts
		}
		p.embedding.retry = policy
		return nil
	}
}

// WithEmbeddingCache reuses embeddings of previously seen texts. model
// namespaces the cache so a model change never returns stale vectors.
func WithEmbeddingCache(cache storage.EmbeddingCache, model string) Option {
	return func(p *Pipeline) error {
		p.embedding.cache = cache
		p.embedding.model = model
		return nil
	}
}

// WithNormalize scales every embedding to unit length before appending.
func WithNormalize(normalize bool) Option {
	return func(p *Pipeline) error {
		p.normalize = normalize
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store *corpus.Store, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store: store,
		pool:  pool,
		embedding: &embeddingProcessor{
			embedder:  embedder,
			batchSize: DefaultBatchSize,
			retry:     ai.DefaultRetryPolicy(),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	p.embedding.pool = p.pool
	p.embedding.logger = p.logger.With("processor", "embeddings")
	return p, nil
}

// Ingest chunks req.Text, embeds the chunks and appends them to the corpus.
// Invalid requests fail with core.ErrInput and have no side effects. Once
// chunking succeeds the work is detached from ctx cancellation.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (core.IngestResult, error) {
	if err := core.ValidateText(req.Text); err != nil {
		return core.IngestResult{}, err
	}
	mode, err := chunker.ParseMode(req.Mode)
	if err != nil {
		return core.IngestResult{}, err
	}
	size := req.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}

	chunks, err := chunker.Split(req.Text, size, req.ChunkOverlap, mode)
	if err != nil {
		return core.IngestResult{}, err
	}
	if len(chunks) == 0 {
		return core.IngestResult{}, fmt.Errorf("%w: %w", core.ErrInput, core.ErrTextTooShort)
	}

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	embeddings, err := p.embedding.embed(ctx, chunks)
	if err != nil {
		return core.IngestResult{}, err
	}
	if p.normalize {
		embeddings = ai.NormalizeAll(embeddings)
	}

	first, total, err := p.store.Append(ctx, chunks, embeddings)
	if err != nil {
		return core.IngestResult{}, err
	}

	p.logger.Info("ingested text",
		"mode", mode,
		"chunks", len(chunks),
		"firstID", first,
		"totalDocs", total,
		"elapsed", time.Since(start))
	return core.IngestResult{NumChunks: len(chunks), TotalDocs: total}, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
