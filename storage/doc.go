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


// Package storage provides the storage abstraction layer for ragfuse.
//
// This package defines repository interfaces that decouple persistence from
// the in-memory corpus and its indexes. The corpus itself is always rebuilt
// in memory; storage only has to hold chunks, a cache of embeddings and a
// small amount of corpus metadata.
//
// # Architecture
//
//   - ChunkRepository: append-only chunk records in ID order
//   - EmbeddingCache: embeddings keyed by CacheKey(model, text)
//   - MetadataRepository: embedding model and dimensionality of the corpus
//
// Values are encoded with the MUS serializers declared in package core.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
