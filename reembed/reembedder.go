// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/poiesic/ragfuse/storage"
)

var (
	// ErrStoreRequired is returned when a corpus store is not provided.
	ErrStoreRequired = errors.New("corpus store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to embed in each call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// Retry controls retries of failed embedding calls
	Retry ai.RetryPolicy

	// Normalize scales every embedding to unit length
	Normalize bool

	// Model is recorded in the corpus metadata after a successful run
	Model string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Retry:          ai.DefaultRetryPolicy(),
	}
}

// Result reports a finished run.
type Result struct {
	Chunks    int           `json:"chunks"`
	Dimension int           `json:"dimension"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithRepository reads chunks from repo instead of the in-memory snapshot.
// repo must back the store.
func WithRepository(repo storage.ChunkRepository) Option {
	return func(r *Reembedder) {
		r.repo = repo
	}
}

// WithMetadata records the new model and dimension in meta after a run.
func WithMetadata(meta storage.MetadataRepository) Option {
	return func(r *Reembedder) {
		r.meta = meta
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reembedder recomputes the embedding of every chunk in a corpus.
type Reembedder struct {
	store     *corpus.Store
	repo      storage.ChunkRepository
	meta      storage.MetadataRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store *corpus.Store, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Retry.MaxAttempts <= 0 {
		return nil, ai.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embedder, config.Retry, config.Normalize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reembed")
	return r, nil
}

func (r *Reembedder) iterator() ChunkIterator {
	if r.repo != nil {
		return NewRepositoryIterator(r.repo, r.config.BatchSize)
	}
	return NewSnapshotIterator(r.store.Snapshot(), r.config.BatchSize)
}

// Run re-embeds every chunk and swaps all embeddings at once. The corpus
// keeps its old embeddings when any batch fails. Chunks appended while the
// run is in progress make the swap fail with a consistency error.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	total := r.store.Len()
	if r.repo != nil {
		stored, err := r.repo.CountChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("count chunks: %w", err)
		}
		if stored != total {
			return nil, fmt.Errorf("%w: repository holds %d chunks, corpus holds %d",
				core.ErrConsistency, stored, total)
		}
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in corpus (0 chunks)\n")
		return &Result{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	embeddings := make([][]float32, 0, total)
	err := r.iterator().ForEach(ctx, func(chunks []*core.Chunk) error {
		for i, chunk := range chunks {
			if chunk.Id != core.ID(len(embeddings)+i) {
				return fmt.Errorf("%w: %w: expected id %d, found %d",
					core.ErrConsistency, core.ErrNonContiguousIDs, len(embeddings)+i, chunk.Id)
			}
		}
		batch, err := r.processor.Process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		embeddings = append(embeddings, batch...)
		tracker.Add(len(chunks))
		return nil
	})
	tracker.Finish()
	if err != nil {
		r.logger.Error("reembedding aborted", "done", tracker.Done(), "total", total, "err", err)
		return nil, err
	}

	if err := r.store.Replace(ctx, embeddings); err != nil {
		return nil, fmt.Errorf("replace embeddings: %w", err)
	}

	dim := r.store.Snapshot().Dim()
	if r.meta != nil {
		meta := &core.CorpusMeta{EmbeddingModel: r.config.Model, Dimension: dim}
		if err := r.meta.SaveMetadata(ctx, meta); err != nil {
			return nil, fmt.Errorf("save metadata: %w", err)
		}
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v\n",
		total, elapsed.Round(time.Millisecond))
	r.logger.Info("reembedding complete", "chunks", total, "dim", dim, "elapsed", elapsed)

	return &Result{Chunks: total, Dimension: dim, Elapsed: elapsed}, nil
}
