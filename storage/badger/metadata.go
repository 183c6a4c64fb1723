package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/storage"
)

// MetadataRepository implements storage.MetadataRepository for BadgerDB.
type MetadataRepository struct {
	backend *Backend
}

var _ storage.MetadataRepository = (*MetadataRepository)(nil)

// NewMetadataRepository creates a new MetadataRepository.
func NewMetadataRepository(backend *Backend) *MetadataRepository {
	return &MetadataRepository{
		backend: backend,
	}
}

// SaveMetadata persists the corpus metadata.
func (r *MetadataRepository) SaveMetadata(ctx context.Context, meta *core.CorpusMeta) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		meta.UpdatedAt = time.Now().UTC()
		if err := tx.Set([]byte(corpusMetaKey), storage.MarshalCorpusMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadMetadata retrieves the corpus metadata.
// Returns nil, nil if no metadata exists.
func (r *MetadataRepository) LoadMetadata(ctx context.Context) (*core.CorpusMeta, error) {
	var meta *core.CorpusMeta
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(corpusMetaKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			meta, unmarshalErr = storage.UnmarshalCorpusMeta(val)
			return unmarshalErr
		})
	}, false)

	return meta, err
}
