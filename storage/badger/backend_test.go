package badger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTransaction(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithTransaction_Error(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	boom := errors.New("boom")
	err = backend.WithTransaction(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repos, err := OpenRepositories(dir, false)
	require.NoError(t, err)
	require.NoError(t, repos.Chunks.AddChunks(ctx,
		&core.Chunk{Id: 0, Text: "first", Embedding: []float32{1, 0}},
		&core.Chunk{Id: 1, Text: "second", Embedding: []float32{0, 1}},
	))
	require.NoError(t, repos.Metadata.SaveMetadata(ctx, &core.CorpusMeta{EmbeddingModel: "m", Dimension: 2}))
	require.NoError(t, repos.Close())

	repos, err = OpenRepositories(dir, false)
	require.NoError(t, err)
	defer repos.Close()

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	meta, err := repos.Metadata.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.Dimension)
}
