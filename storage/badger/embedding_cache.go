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

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
)

// EmbeddingCache implements storage.EmbeddingCache for BadgerDB.
type EmbeddingCache struct {
	backend *Backend
}

var _ storage.EmbeddingCache = (*EmbeddingCache)(nil)

// NewEmbeddingCache creates a new EmbeddingCache.
func NewEmbeddingCache(backend *Backend) *EmbeddingCache {
	return &EmbeddingCache{
		backend: backend,
	}
}

// GetEmbeddings returns the cached embeddings for keys.
func (c *EmbeddingCache) GetEmbeddings(ctx context.Context, keys ...core.ID) (map[core.ID][]float32, error) {
	found := make(map[core.ID][]float32, len(keys))
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			item, err := tx.Get(makeEmbeddingCacheKey(key))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if err := item.Value(func(val []byte) error {
				vector, err := storage.UnmarshalVector(val)
				if err != nil {
					return err
				}
				found[key] = vector
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PutEmbeddings stores entries, overwriting existing ones.
func (c *EmbeddingCache) PutEmbeddings(ctx context.Context, entries map[core.ID][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	return c.backend.WithTx(func(tx *badger.Txn) error {
		for key, vector := range entries {
			if err := tx.Set(makeEmbeddingCacheKey(key), storage.MarshalVector(vector)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() (int, error) {
	return c.backend.countPrefix([]byte(embeddingCachePrefix))
}
