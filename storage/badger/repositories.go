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

// Repositories groups the repositories sharing one Backend.
type Repositories struct {
	Backend  *Backend
	Chunks   *ChunkRepository
	Cache    *EmbeddingCache
	Metadata *MetadataRepository
}

// OpenRepositories opens a backend at path and creates all repositories on it.
// Caller must Close the result when done.
func OpenRepositories(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:  backend,
		Chunks:   chunks,
		Cache:    NewEmbeddingCache(backend),
		Metadata: NewMetadataRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("", true)
}

// Close closes the repositories and the shared backend.
func (r *Repositories) Close() error {
	if err := r.Chunks.Close(); err != nil {
		return err
	}
	return r.Backend.Close()
}
