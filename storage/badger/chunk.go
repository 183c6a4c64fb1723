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


package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &ChunkRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks stores chunks. Large batches are split over several
// transactions; on failure every chunk already written is removed again, so
// either all chunks are stored or none.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Check every key first so a duplicate never leaves a partial write.
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		seen := make(map[core.ID]bool, len(chunks))
		for _, chunk := range chunks {
			if seen[chunk.Id] {
				return fmt.Errorf("%w: chunk %d", storage.ErrDuplicateKey, chunk.Id)
			}
			seen[chunk.Id] = true
			_, err := tx.Get(makeChunkKey(chunk.Id))
			if err == nil {
				return fmt.Errorf("%w: chunk %d", storage.ErrDuplicateKey, chunk.Id)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	committed, err := r.backend.writeBatched(ctx, len(chunks), func(tx *badger.Txn, i int) error {
		return tx.Set(makeChunkKey(chunks[i].Id), storage.MarshalChunk(chunks[i]))
	})
	if err != nil {
		if committed > 0 {
			r.removeChunks(chunks[:committed])
		}
		return err
	}
	return nil
}

// removeChunks deletes chunks written by a failed AddChunks.
func (r *ChunkRepository) removeChunks(chunks []*core.Chunk) {
	_, err := r.backend.writeBatched(context.Background(), len(chunks), func(tx *badger.Txn, i int) error {
		return tx.Delete(makeChunkKey(chunks[i].Id))
	})
	if err != nil {
		r.backend.logger.Error("failed to remove partially added chunks", "count", len(chunks), "err", err)
	}
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ForEachChunk calls fn for every stored chunk in ascending ID order.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// GetChunksAfter returns up to limit chunks following afterID in ID order.
// When first is true iteration starts at the lowest ID and afterID is ignored.
func (r *ChunkRepository) GetChunksAfter(ctx context.Context, afterID core.ID, first bool, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		if first {
			iter.Rewind()
		} else {
			iter.Seek(makeChunkKey(afterID))
			if iter.Valid() && idFromKey(chunkPrefix, iter.Item().Key()) == afterID {
				iter.Next()
			}
		}

		for ; iter.Valid() && len(results) < limit; iter.Next() {
			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, chunk)
		}
		return nil
	}, false)

	return results, err
}

// UpdateEmbeddings replaces the embeddings of existing chunks.
// The stored text is kept; only the embedding of each chunk changes. Large
// batches are split over several transactions. When an update fails, the
// chunks already rewritten get their previous embeddings back.
func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, chunks ...*core.Chunk) error {
	previous := make([][]float32, len(chunks))
	committed, err := r.backend.writeBatched(ctx, len(chunks), func(tx *badger.Txn, i int) error {
		chunk := chunks[i]
		key := makeChunkKey(chunk.Id)

		old, err := readChunk(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: chunk %d", storage.ErrNotFound, chunk.Id)
		}

		previous[i] = old.Embedding
		old.Embedding = chunk.Embedding
		return tx.Set(key, storage.MarshalChunk(old))
	})
	if err != nil && committed > 0 {
		r.restoreEmbeddings(chunks[:committed], previous[:committed])
	}
	return err
}

// restoreEmbeddings puts back embeddings overwritten by a failed update.
func (r *ChunkRepository) restoreEmbeddings(chunks []*core.Chunk, embeddings [][]float32) {
	_, err := r.backend.writeBatched(context.Background(), len(chunks), func(tx *badger.Txn, i int) error {
		key := makeChunkKey(chunks[i].Id)
		old, err := readChunk(tx, key)
		if err != nil || old == nil {
			return err
		}
		old.Embedding = embeddings[i]
		return tx.Set(key, storage.MarshalChunk(old))
	})
	if err != nil {
		r.backend.logger.Error("failed to restore embeddings", "count", len(chunks), "err", err)
	}
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	return r.backend.countPrefix([]byte(chunkPrefix))
}

// readChunk reads a chunk from the transaction.
// Returns nil, nil if the key does not exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}
