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

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/poiesic/ragfuse/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator walks a corpus in ID order, one batch at a time.
type ChunkIterator interface {
	// ForEach calls fn for each batch. Iteration stops on first error from fn.
	ForEach(ctx context.Context, fn func([]*core.Chunk) error) error
}

// RepositoryIterator pages through a chunk repository.
type RepositoryIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

var _ ChunkIterator = (*RepositoryIterator)(nil)

// NewRepositoryIterator creates a new repository iterator.
// batchSize: number of chunks to fetch in each batch; <= 0 selects DefaultBatchSize
func NewRepositoryIterator(repo storage.ChunkRepository, batchSize int) *RepositoryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RepositoryIterator{repo: repo, batchSize: batchSize}
}

// ForEach implements ChunkIterator. Only one batch is held in memory at a
// time. Context cancellation is checked between batches.
func (it *RepositoryIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	var after core.ID
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.GetChunksAfter(ctx, after, first, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < it.batchSize {
			return nil
		}
		after = batch[len(batch)-1].Id
		first = false
	}
}

// SnapshotIterator walks the texts of an in-memory corpus snapshot.
type SnapshotIterator struct {
	snap      *corpus.Snapshot
	batchSize int
}

var _ ChunkIterator = (*SnapshotIterator)(nil)

// NewSnapshotIterator creates an iterator over snap.
func NewSnapshotIterator(snap *corpus.Snapshot, batchSize int) *SnapshotIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SnapshotIterator{snap: snap, batchSize: batchSize}
}

// ForEach implements ChunkIterator. Batches carry text only; the snapshot's
// embeddings are not copied.
func (it *SnapshotIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	texts := it.snap.Texts
	for i := 0; i < len(texts); i += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+it.batchSize, len(texts))
		batch := make([]*core.Chunk, 0, end-i)
		for id := i; id < end; id++ {
			batch = append(batch, &core.Chunk{Id: core.ID(id), Text: texts[id]})
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
