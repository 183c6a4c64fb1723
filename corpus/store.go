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


package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/rank"
	"github.com/poiesic/ragfuse/storage"
	"github.com/poiesic/ragfuse/text"
)

var (
	// ErrTokenizerRequired is returned when a nil tokenizer is supplied.
	ErrTokenizerRequired = errors.New("tokenizer is required")
)

// Option configures a Store.
type Option func(*Store) error

// WithRepository persists appended chunks through repo.
func WithRepository(repo storage.ChunkRepository) Option {
	return func(s *Store) error {
		s.repo = repo
		return nil
	}
}

// WithTokenizer sets the tokenizer used to build the lexical index.
func WithTokenizer(tokenizer text.Tokenizer) Option {
	return func(s *Store) error {
		if tokenizer == nil {
			return ErrTokenizerRequired
		}
		s.tokenizer = tokenizer
		return nil
	}
}

// WithBM25Params sets the lexical ranking parameters.
func WithBM25Params(params rank.BM25Params) Option {
	return func(s *Store) error {
		s.params = params
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Store is the RWMutex-guarded corpus.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot

	repo      storage.ChunkRepository
	tokenizer text.Tokenizer
	params    rank.BM25Params
	logger    *slog.Logger
}

// New creates an empty Store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		tokenizer: text.DefaultTokenizer{},
		params:    rank.DefaultBM25Params(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "corpus")

	snap, err := build(0, nil, nil, s.tokenizer, s.params)
	if err != nil {
		return nil, err
	}
	s.snap = snap
	return s, nil
}

// Snapshot returns the current corpus state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	return s.Snapshot().Len()
}

// Texts returns a copy of all chunk texts in ID order.
func (s *Store) Texts() []string {
	return append([]string(nil), s.Snapshot().Texts...)
}

// Append adds texts with their embeddings, assigning IDs continuing from the
// current length. Returns the ID of the first appended chunk and the new
// corpus size. Appends are serialized and block readers until the new
// snapshot is published.
func (s *Store) Append(ctx context.Context, texts []string, embeddings [][]float32) (core.ID, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap
	first := core.ID(cur.Len())
	if len(texts) == 0 && len(embeddings) == 0 {
		return first, cur.Len(), nil
	}

	if _, err := core.ValidateEmbeddings(texts, embeddings, cur.Dim()); err != nil {
		return first, cur.Len(), err
	}

	added := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		added[i] = append([]float32(nil), e...)
	}

	allTexts := make([]string, 0, cur.Len()+len(texts))
	allTexts = append(append(allTexts, cur.Texts...), texts...)
	allEmbeddings := make([][]float32, 0, cur.Len()+len(added))
	allEmbeddings = append(append(allEmbeddings, cur.Embeddings...), added...)

	next, err := build(cur.Version+1, allTexts, allEmbeddings, s.tokenizer, s.params)
	if err != nil {
		return first, cur.Len(), err
	}

	if s.repo != nil {
		chunks := make([]*core.Chunk, len(texts))
		for i := range texts {
			chunks[i] = &core.Chunk{Id: first + core.ID(i), Text: texts[i], Embedding: added[i]}
		}
		if err := s.repo.AddChunks(ctx, chunks...); err != nil {
			return first, cur.Len(), fmt.Errorf("persist chunks: %w", err)
		}
	}

	s.snap = next
	s.logger.Debug("corpus appended", "added", len(texts), "total", next.Len(), "version", next.Version)
	return first, next.Len(), nil
}

// Replace swaps every embedding at once, keeping texts and IDs. The attached
// repository, if any, is updated before the new snapshot is published.
func (s *Store) Replace(ctx context.Context, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap
	if _, err := core.ValidateEmbeddings(cur.Texts, embeddings, 0); err != nil {
		return err
	}

	replaced := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		replaced[i] = append([]float32(nil), e...)
	}

	next, err := build(cur.Version+1, cur.Texts, replaced, s.tokenizer, s.params)
	if err != nil {
		return err
	}

	if s.repo != nil && len(replaced) > 0 {
		chunks := make([]*core.Chunk, len(replaced))
		for i := range replaced {
			chunks[i] = &core.Chunk{Id: core.ID(i), Embedding: replaced[i]}
		}
		if err := s.repo.UpdateEmbeddings(ctx, chunks...); err != nil {
			return fmt.Errorf("persist embeddings: %w", err)
		}
	}

	s.snap = next
	s.logger.Info("corpus embeddings replaced", "total", next.Len(), "dim", next.Dim(), "version", next.Version)
	return nil
}

// Load rebuilds the in-memory corpus from the attached repository.
// Stored IDs must be contiguous from 0. Without a repository Load is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	var embeddings [][]float32
	err := s.repo.ForEachChunk(ctx, func(chunk *core.Chunk) error {
		if chunk.Id != core.ID(len(texts)) {
			return fmt.Errorf("%w: %w: expected id %d, found %d",
				core.ErrConsistency, core.ErrNonContiguousIDs, len(texts), chunk.Id)
		}
		texts = append(texts, chunk.Text)
		embeddings = append(embeddings, chunk.Embedding)
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := core.ValidateEmbeddings(texts, embeddings, 0); err != nil {
		return err
	}

	next, err := build(s.snap.Version+1, texts, embeddings, s.tokenizer, s.params)
	if err != nil {
		return err
	}
	s.snap = next
	s.logger.Info("corpus loaded", "total", next.Len(), "dim", next.Dim())
	return nil
}
