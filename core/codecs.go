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


package core

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ErrInvalidLength indicates a corrupt length prefix.
var ErrInvalidLength = errors.New("invalid length prefix")

// IDMUS is the MUS serializer for ID.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

// VectorMUS is the MUS serializer for embeddings: a length prefix followed
// by the IEEE-754 bits of each component.
var VectorMUS = vectorMUS{}

type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length > uint64(len(bs)-n) {
		return nil, n, ErrInvalidLength
	}
	v = make([]float32, length)
	for i := range v {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

// ChunkMUS is the MUS serializer for Chunk.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Text, bs[n:])
	return n + VectorMUS.Marshal(v.Embedding, bs[n:])
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Embedding, n1, err = VectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Text)
	return size + VectorMUS.Size(v.Embedding)
}

// CorpusMetaMUS is the MUS serializer for CorpusMeta.
// UpdatedAt is stored with microsecond precision.
var CorpusMetaMUS = corpusMetaMUS{}

type corpusMetaMUS struct{}

func (corpusMetaMUS) Marshal(v CorpusMeta, bs []byte) (n int) {
	n = ord.String.Marshal(v.EmbeddingModel, bs)
	n += varint.Uint64.Marshal(uint64(v.Dimension), bs[n:])
	return n + varint.Uint64.Marshal(uint64(v.UpdatedAt.UnixMicro()), bs[n:])
}

func (corpusMetaMUS) Unmarshal(bs []byte) (v CorpusMeta, n int, err error) {
	v.EmbeddingModel, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	dim, n1, err := varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Dimension = int(dim)
	micros, n1, err := varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(int64(micros)).UTC()
	return
}

func (corpusMetaMUS) Size(v CorpusMeta) (size int) {
	size = ord.String.Size(v.EmbeddingModel)
	size += varint.Uint64.Size(uint64(v.Dimension))
	return size + varint.Uint64.Size(uint64(v.UpdatedAt.UnixMicro()))
}
