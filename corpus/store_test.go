package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
	"github.com/poiesic/ragfuse/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingRepo wraps a ChunkRepository and fails writes on demand.
type failingRepo struct {
	storage.ChunkRepository
	addErr    error
	updateErr error
}

func (r *failingRepo) AddChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if r.addErr != nil {
		return r.addErr
	}
	return r.ChunkRepository.AddChunks(ctx, chunks...)
}

func (r *failingRepo) UpdateEmbeddings(ctx context.Context, chunks ...*core.Chunk) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.ChunkRepository.UpdateEmbeddings(ctx, chunks...)
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestNew_Empty(t *testing.T) {
	s := newStore(t)
	snap := s.Snapshot()

	assert.True(t, snap.Empty())
	assert.Zero(t, snap.Dim())
	assert.Nil(t, snap.Vector)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Texts())

	_, err := New(WithTokenizer(nil))
	assert.ErrorIs(t, err, ErrTokenizerRequired)
}

func TestAppend_AssignsIDsAndRebuilds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, total, err := s.Append(ctx, []string{"paris is in france", "berlin is in germany"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, core.ID(0), first)
	assert.Equal(t, 2, total)

	v1 := s.Snapshot()
	assert.Equal(t, uint64(1), v1.Version)
	assert.Equal(t, 2, v1.Lexical.Len())
	assert.Equal(t, 2, v1.Vector.Len())

	first, total, err = s.Append(ctx, []string{"rome is in italy"}, [][]float32{{0.5, 0.5}})
	require.NoError(t, err)
	assert.Equal(t, core.ID(2), first)
	assert.Equal(t, 3, total)

	v2 := s.Snapshot()
	assert.Equal(t, uint64(2), v2.Version)
	assert.Equal(t, 3, v2.Lexical.Len(), "lexical index covers the entire corpus")
	assert.Equal(t, 3, v2.Vector.Len(), "vector index covers the entire corpus")
	assert.Equal(t, len(v2.Texts), len(v2.Embeddings))

	// Older snapshots stay untouched.
	assert.Equal(t, 2, v1.Len())

	text, ok := v2.Text(2)
	assert.True(t, ok)
	assert.Equal(t, "rome is in italy", text)
	_, ok = v2.Text(3)
	assert.False(t, ok)

	hits := v2.Lexical.Score("italy", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID(2), hits[0].DocID)
}

func TestAppend_Empty(t *testing.T) {
	s := newStore(t)
	first, total, err := s.Append(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, core.ID(0), first)
	assert.Zero(t, total)
	assert.Equal(t, uint64(0), s.Snapshot().Version)
}

func TestAppend_Consistency(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, _, err := s.Append(ctx, []string{"a"}, [][]float32{{1, 2, 3}})
	require.NoError(t, err)

	tests := []struct {
		name       string
		texts      []string
		embeddings [][]float32
		cause      error
	}{
		{"length mismatch", []string{"b", "c"}, [][]float32{{1, 2, 3}}, core.ErrLengthMismatch},
		{"dimension mismatch", []string{"b"}, [][]float32{{1, 2}}, core.ErrDimensionMismatch},
		{"empty embedding", []string{"b"}, [][]float32{{}}, core.ErrEmptyEmbedding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := s.Append(ctx, tt.texts, tt.embeddings)
			assert.ErrorIs(t, err, core.ErrConsistency)
			assert.ErrorIs(t, err, tt.cause)
			assert.Equal(t, 1, total)
			assert.Equal(t, 1, s.Len(), "corpus unchanged after failure")
		})
	}
}

func TestAppend_CopiesEmbeddings(t *testing.T) {
	s := newStore(t)
	vec := []float32{1, 2}
	_, _, err := s.Append(context.Background(), []string{"a"}, [][]float32{vec})
	require.NoError(t, err)

	vec[0] = 99
	assert.Equal(t, float32(1), s.Snapshot().Embeddings[0][0])
}

func TestAppend_PersistsBeforePublish(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	repo := &failingRepo{ChunkRepository: repos.Chunks}
	s := newStore(t, WithRepository(repo))

	_, _, err = s.Append(ctx, []string{"a", "b"}, [][]float32{{1}, {2}})
	require.NoError(t, err)

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	repo.addErr = errors.New("disk full")
	_, total, err := s.Append(ctx, []string{"c"}, [][]float32{{3}})
	assert.ErrorIs(t, err, repo.addErr)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, s.Len(), "failed write leaves the corpus unchanged")
	assert.Equal(t, uint64(1), s.Snapshot().Version)
}

func TestLoad(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	writer := newStore(t, WithRepository(repos.Chunks))
	_, _, err = writer.Append(ctx, []string{"alpha beta", "gamma delta"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	reader := newStore(t, WithRepository(repos.Chunks))
	require.NoError(t, reader.Load(ctx))

	assert.Equal(t, writer.Texts(), reader.Texts())
	snap := reader.Snapshot()
	assert.Equal(t, 2, snap.Dim())
	assert.Equal(t, 2, snap.Lexical.Len())

	first, _, err := reader.Append(ctx, []string{"epsilon"}, [][]float32{{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, core.ID(2), first, "IDs continue after load")
}

func TestLoad_NonContiguous(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	require.NoError(t, repos.Chunks.AddChunks(ctx,
		&core.Chunk{Id: 0, Text: "a", Embedding: []float32{1}},
		&core.Chunk{Id: 2, Text: "c", Embedding: []float32{1}},
	))

	s := newStore(t, WithRepository(repos.Chunks))
	err = s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrConsistency)
	assert.ErrorIs(t, err, core.ErrNonContiguousIDs)
	assert.Equal(t, 0, s.Len())
}

func TestLoad_NoRepository(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Load(context.Background()))
}

func TestReplace(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	repo := &failingRepo{ChunkRepository: repos.Chunks}
	s := newStore(t, WithRepository(repo))
	_, _, err = s.Append(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	t.Run("dimension may change", func(t *testing.T) {
		require.NoError(t, s.Replace(ctx, [][]float32{{1, 0, 0}, {0, 0, 1}}))
		assert.Equal(t, 3, s.Snapshot().Dim())
		assert.Equal(t, []string{"a", "b"}, s.Texts())

		stored, err := repos.Chunks.GetChunk(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 1}, stored.Embedding)
		assert.Equal(t, "b", stored.Text)
	})

	t.Run("length must match corpus", func(t *testing.T) {
		err := s.Replace(ctx, [][]float32{{1, 0, 0}})
		assert.ErrorIs(t, err, core.ErrLengthMismatch)
	})

	t.Run("single dimension", func(t *testing.T) {
		err := s.Replace(ctx, [][]float32{{1, 0, 0}, {1}})
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("failed write keeps state", func(t *testing.T) {
		repo.updateErr = errors.New("io error")
		defer func() { repo.updateErr = nil }()
		version := s.Snapshot().Version
		err := s.Replace(ctx, [][]float32{{5}, {6}})
		assert.ErrorIs(t, err, repo.updateErr)
		assert.Equal(t, version, s.Snapshot().Version)
		assert.Equal(t, 3, s.Snapshot().Dim())
	})
}

func TestReplace_LargePersistedCorpus(t *testing.T) {
	if testing.Short() {
		t.Skip("large corpus")
	}
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	const batches, perBatch, dim = 6, 2000, 768
	s := newStore(t, WithRepository(repos.Chunks))
	for b := 0; b < batches; b++ {
		texts := make([]string, perBatch)
		embeddings := make([][]float32, perBatch)
		for i := range texts {
			texts[i] = fmt.Sprintf("chunk %d %s", b*perBatch+i, strings.Repeat("word ", 20))
			embeddings[i] = make([]float32, dim)
			embeddings[i][i%dim] = 1
		}
		_, _, err := s.Append(ctx, texts, embeddings)
		require.NoError(t, err)
	}
	require.Equal(t, batches*perBatch, s.Len())

	replaced := make([][]float32, s.Len())
	for i := range replaced {
		replaced[i] = make([]float32, dim)
		replaced[i][(i+1)%dim] = 1
	}
	require.NoError(t, s.Replace(ctx, replaced))
	assert.Equal(t, replaced[s.Len()-1], s.Snapshot().Embeddings[s.Len()-1])

	stored, err := repos.Chunks.GetChunk(ctx, core.ID(s.Len()-1))
	require.NoError(t, err)
	assert.Equal(t, replaced[s.Len()-1], stored.Embedding)
}

func TestConcurrentAppendAndRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := s.Append(ctx, []string{"x y", "z w"}, [][]float32{{1, 2}, {3, 4}})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			assert.Equal(t, len(snap.Texts), len(snap.Embeddings))
			assert.Equal(t, len(snap.Texts), snap.Lexical.Len())
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 16, snap.Len())
	assert.Equal(t, uint64(8), snap.Version)
	seen := map[core.ID]bool{}
	for id := range snap.Texts {
		seen[core.ID(id)] = true
	}
	assert.Len(t, seen, 16)
}
