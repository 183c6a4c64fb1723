package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
)

// embeddingProcessor embeds chunk texts in batches on a worker pool.
type embeddingProcessor struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	retry     ai.RetryPolicy
	cache     storage.EmbeddingCache
	model     string
	logger    *slog.Logger
}

// embed returns one embedding per text, in order. Cached embeddings are
// reused; misses are embedded and written back to the cache.
func (ep *embeddingProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var keys []core.ID
	if ep.cache != nil {
		keys = make([]core.ID, len(texts))
		for i, t := range texts {
			keys[i] = storage.CacheKey(ep.model, t)
		}
		found, err := ep.cache.GetEmbeddings(ctx, keys...)
		if err != nil {
			ep.logger.Warn("embedding cache lookup failed", "err", err)
		}
		for i, key := range keys {
			if v, ok := found[key]; ok {
				embeddings[i] = v
			}
		}
	}

	var missing []int
	for i := range texts {
		if embeddings[i] == nil {
			missing = append(missing, i)
		}
	}
	ep.logger.Debug("embedding chunks",
		"chunks", len(texts),
		"cached", len(texts)-len(missing),
		"batchSize", ep.batchSize)
	if len(missing) == 0 {
		return embeddings, nil
	}

	if err := ep.embedBatches(ctx, texts, missing, embeddings); err != nil {
		return nil, err
	}

	if ep.cache != nil {
		entries := make(map[core.ID][]float32, len(missing))
		for _, i := range missing {
			entries[keys[i]] = embeddings[i]
		}
		if err := ep.cache.PutEmbeddings(ctx, entries); err != nil {
			ep.logger.Warn("embedding cache write failed", "err", err)
		}
	}
	return embeddings, nil
}

// embedBatches embeds texts[missing] and stores the results into out.
// The first batch failure is returned after all submitted batches finish.
func (ep *embeddingProcessor) embedBatches(ctx context.Context, texts []string, missing []int, out [][]float32) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(missing); start += ep.batchSize {
		end := min(start+ep.batchSize, len(missing))
		batch := missing[start:end]

		wg.Add(1)
		err := ep.pool.Submit(func() {
			defer wg.Done()
			if err := ep.embedBatch(ctx, texts, batch, out); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()
	return firstErr
}

func (ep *embeddingProcessor) embedBatch(ctx context.Context, texts []string, batch []int, out [][]float32) error {
	input := make([]string, len(batch))
	for j, i := range batch {
		input[j] = texts[i]
	}

	vectors, err := ai.Retry(ctx, ep.retry, func(ctx context.Context) ([][]float32, error) {
		return ep.embedder.EmbedTexts(ctx, input)
	})
	if err != nil {
		ep.logger.Error("error generating embeddings", "batch", len(batch), "err", err)
		return fmt.Errorf("%w: embed %d chunks: %w", core.ErrCollaborator, len(batch), err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: %w: expected %d embeddings, received %d",
			core.ErrConsistency, core.ErrLengthMismatch, len(batch), len(vectors))
	}

	for j, i := range batch {
		out[i] = vectors[j]
	}
	return nil
}
