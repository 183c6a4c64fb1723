package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		Retry:          fastRetry(3),
		Normalize:      true,
		Model:          "new-model",
	}
}

func TestNewReembedder_Validation(t *testing.T) {
	store, _ := setupTestStore(t, 0)

	_, err := NewReembedder(nil, &mockEmbedder{}, nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 0
	_, err = NewReembedder(store, &mockEmbedder{}, cfg, nil)
	assert.Error(t, err)

	r, err := NewReembedder(store, &mockEmbedder{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.config.BatchSize)
}

func TestReembedder_Run(t *testing.T) {
	store, repos := setupTestStore(t, 10)
	ctx := context.Background()

	var buf bytes.Buffer
	reembedder, err := NewReembedder(store, &mockEmbedder{}, testConfig(), &buf,
		WithRepository(repos.Chunks), WithMetadata(repos.Metadata))
	require.NoError(t, err)

	result, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Chunks)
	assert.Equal(t, 3, result.Dimension)

	// In-memory snapshot holds the new embeddings
	snap := store.Snapshot()
	assert.Equal(t, 3, snap.Dim())
	assert.Equal(t, "chunk 4", snap.Texts[4], "texts are preserved")
	for _, e := range snap.Embeddings {
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, e, 1e-6, "vector should be normalized")
	}

	// Repository holds them too
	stored, err := repos.Chunks.GetChunk(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "chunk 7", stored.Text)
	assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, stored.Embedding, 1e-6)

	meta, err := repos.Metadata.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "new-model", meta.EmbeddingModel)
	assert.Equal(t, 3, meta.Dimension)

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 10 chunks (batch size: 3)")
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Reembedding complete")
}

func TestReembedder_InMemoryStore(t *testing.T) {
	store, err := corpus.New()
	require.NoError(t, err)
	_, _, err = store.Append(context.Background(), []string{"a", "b"}, [][]float32{{1}, {2}})
	require.NoError(t, err)

	var seen []string
	embedder := &mockEmbedder{
		embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			seen = append(seen, texts...)
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{0, 1}
			}
			return out, nil
		},
	}
	reembedder, err := NewReembedder(store, embedder, testConfig(), nil)
	require.NoError(t, err)

	result, err := reembedder.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, [][]float32{{0, 1}, {0, 1}}, store.Snapshot().Embeddings)
}

func TestReembedder_EmptyCorpus(t *testing.T) {
	store, repos := setupTestStore(t, 0)

	var buf bytes.Buffer
	embedder := &mockEmbedder{}
	reembedder, err := NewReembedder(store, embedder, testConfig(), &buf, WithRepository(repos.Chunks))
	require.NoError(t, err)

	result, err := reembedder.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Chunks)
	assert.Contains(t, buf.String(), "No chunks found")
	assert.Zero(t, embedder.calls)
}

func TestReembedder_FailureKeepsOldEmbeddings(t *testing.T) {
	store, repos := setupTestStore(t, 5)
	ctx := context.Background()

	embedder := &mockEmbedder{}
	embedder.embedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if embedder.calls > 1 {
			return nil, errors.New("model unloaded")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{9, 9, 9}
		}
		return out, nil
	}

	var buf bytes.Buffer
	reembedder, err := NewReembedder(store, embedder, testConfig(), &buf, WithRepository(repos.Chunks))
	require.NoError(t, err)

	_, err = reembedder.Run(ctx)
	assert.ErrorIs(t, err, core.ErrCollaborator)
	assert.Contains(t, buf.String(), "3/5", "progress shows the completed batch")

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.Dim())
	assert.Equal(t, []float32{3, 1}, snap.Embeddings[3])

	stored, err := repos.Chunks.GetChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, stored.Embedding)
}

func TestReembedder_RepositoryMismatch(t *testing.T) {
	_, repos := setupTestStore(t, 3)
	other, err := corpus.New()
	require.NoError(t, err)

	reembedder, err := NewReembedder(other, &mockEmbedder{}, testConfig(), nil, WithRepository(repos.Chunks))
	require.NoError(t, err)

	_, err = reembedder.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrConsistency)
}
