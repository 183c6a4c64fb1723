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


package storage

import (
	"fmt"

	"github.com/poiesic/ragfuse/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalVector serializes an embedding to bytes.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, core.VectorMUS.Size(v))
	core.VectorMUS.Marshal(v, buf)
	return buf
}

// UnmarshalVector deserializes an embedding from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, _, err := core.VectorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return v, nil
}

// MarshalCorpusMeta serializes CorpusMeta to bytes.
func MarshalCorpusMeta(meta *core.CorpusMeta) []byte {
	buf := make([]byte, core.CorpusMetaMUS.Size(*meta))
	core.CorpusMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalCorpusMeta deserializes CorpusMeta from bytes.
func UnmarshalCorpusMeta(data []byte) (*core.CorpusMeta, error) {
	meta, _, err := core.CorpusMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &meta, nil
}
