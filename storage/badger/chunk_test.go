package badger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func makeChunks(start, n int) []*core.Chunk {
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		id := start + i
		chunks[i] = &core.Chunk{Id: core.ID(id), Text: "chunk text", Embedding: []float32{float32(id), 1}}
	}
	return chunks
}

func TestChunkBasics(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Chunks.AddChunks(ctx, &core.Chunk{Id: 0, Text: "Hello, world!", Embedding: []float32{0.5, 0.25}}))

	got, err := repos.Chunks.GetChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got.Text)
	assert.Equal(t, []float32{0.5, 0.25}, got.Embedding)

	_, err = repos.Chunks.GetChunk(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddChunks_Empty(t *testing.T) {
	repos := newTestRepos(t)
	require.NoError(t, repos.Chunks.AddChunks(context.Background()))
}

func TestAddChunks_DuplicateIsAtomic(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Chunks.AddChunks(ctx, makeChunks(0, 2)...))

	err := repos.Chunks.AddChunks(ctx, makeChunks(2, 1)[0], makeChunks(1, 1)[0])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "failed batch must not be partially written")
}

func TestAddChunks_DuplicateWithinBatch(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	err := repos.Chunks.AddChunks(ctx, makeChunks(0, 1)[0], makeChunks(0, 1)[0])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestForEachChunk_Order(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	// IDs above 255 check that big-endian keys keep numeric order
	chunks := append(makeChunks(256, 2), makeChunks(0, 3)...)
	require.NoError(t, repos.Chunks.AddChunks(ctx, chunks...))

	var ids []core.ID
	require.NoError(t, repos.Chunks.ForEachChunk(ctx, func(c *core.Chunk) error {
		ids = append(ids, c.Id)
		return nil
	}))
	assert.Equal(t, []core.ID{0, 1, 2, 256, 257}, ids)
}

func TestForEachChunk_StopsOnError(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	require.NoError(t, repos.Chunks.AddChunks(ctx, makeChunks(0, 5)...))

	stop := errors.New("stop")
	visited := 0
	err := repos.Chunks.ForEachChunk(ctx, func(*core.Chunk) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}

func TestGetChunksAfter(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	require.NoError(t, repos.Chunks.AddChunks(ctx, makeChunks(0, 5)...))

	first, err := repos.Chunks.GetChunksAfter(ctx, 0, true, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, core.ID(0), first[0].Id)
	assert.Equal(t, core.ID(1), first[1].Id)

	next, err := repos.Chunks.GetChunksAfter(ctx, first[1].Id, false, 10)
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, core.ID(2), next[0].Id)

	none, err := repos.Chunks.GetChunksAfter(ctx, 4, false, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	zero, err := repos.Chunks.GetChunksAfter(ctx, 0, true, 0)
	require.NoError(t, err)
	assert.Empty(t, zero)
}

func TestUpdateEmbeddings(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	require.NoError(t, repos.Chunks.AddChunks(ctx, makeChunks(0, 2)...))

	require.NoError(t, repos.Chunks.UpdateEmbeddings(ctx, &core.Chunk{Id: 1, Text: "ignored", Embedding: []float32{9, 9, 9}}))

	got, err := repos.Chunks.GetChunk(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "chunk text", got.Text, "text must never change")
	assert.Equal(t, []float32{9, 9, 9}, got.Embedding)

	err = repos.Chunks.UpdateEmbeddings(ctx, &core.Chunk{Id: 0, Embedding: []float32{1}}, &core.Chunk{Id: 42, Embedding: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	unchanged, err := repos.Chunks.GetChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, unchanged.Embedding)
}

func largeChunks(n, dim int) []*core.Chunk {
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		embedding := make([]float32, dim)
		embedding[i%dim] = 1
		chunks[i] = &core.Chunk{Id: core.ID(i), Text: strings.Repeat("x", 200), Embedding: embedding}
	}
	return chunks
}

func TestAddChunks_LargeBatchSpansTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("large batch")
	}
	repos := newTestRepos(t)
	ctx := context.Background()

	const n, dim = 15000, 768
	require.NoError(t, repos.Chunks.AddChunks(ctx, largeChunks(n, dim)...))

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	updated := make([]*core.Chunk, n)
	for i := range updated {
		embedding := make([]float32, dim)
		embedding[(i+1)%dim] = 2
		updated[i] = &core.Chunk{Id: core.ID(i), Embedding: embedding}
	}
	require.NoError(t, repos.Chunks.UpdateEmbeddings(ctx, updated...))

	last, err := repos.Chunks.GetChunk(ctx, n-1)
	require.NoError(t, err)
	assert.Equal(t, float32(2), last.Embedding[n%dim])
	assert.Len(t, last.Text, 200)
}

func TestUpdateEmbeddings_FailureRestoresCommitted(t *testing.T) {
	if testing.Short() {
		t.Skip("large batch")
	}
	repos := newTestRepos(t)
	ctx := context.Background()

	const n, dim = 6000, 768
	require.NoError(t, repos.Chunks.AddChunks(ctx, largeChunks(n, dim)...))

	// The missing trailing chunk fails the update after earlier
	// transactions have already committed.
	updated := make([]*core.Chunk, n+1)
	for i := range updated {
		updated[i] = &core.Chunk{Id: core.ID(i), Embedding: make([]float32, dim)}
	}
	err := repos.Chunks.UpdateEmbeddings(ctx, updated...)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first, err := repos.Chunks.GetChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), first.Embedding[0])
}
