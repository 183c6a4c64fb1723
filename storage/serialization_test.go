package storage

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/ragfuse/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshal_EmptyData(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalChunk([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalVector(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalCorpusMeta(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{"no embedding", &core.Chunk{Id: 0, Text: "hello"}},
		{"with embedding", &core.Chunk{Id: 7, Text: "Paris is the capital of France.", Embedding: []float32{0.1, -0.5, 3.25}}},
		{"unicode text", &core.Chunk{Id: 12, Text: "巴黎是法国的首都。", Embedding: []float32{1}}},
		{"special floats", &core.Chunk{Id: 1, Text: "x", Embedding: []float32{0, float32(math.Inf(1)), -0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalChunk(MarshalChunk(tt.chunk))
			require.NoError(t, err)
			assert.Equal(t, tt.chunk.Id, decoded.Id)
			assert.Equal(t, tt.chunk.Text, decoded.Text)
			assert.Len(t, decoded.Embedding, len(tt.chunk.Embedding))
			for i := range tt.chunk.Embedding {
				assert.Equal(t, math.Float32bits(tt.chunk.Embedding[i]), math.Float32bits(decoded.Embedding[i]))
			}
		})
	}
}

func TestUnmarshalChunk_Truncated(t *testing.T) {
	data := MarshalChunk(&core.Chunk{Id: 3, Text: "some text", Embedding: []float32{1, 2, 3}})
	_, err := UnmarshalChunk(data[:len(data)-2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalVector_CorruptLength(t *testing.T) {
	// length prefix 100 followed by a single byte
	_, err := UnmarshalVector([]byte{100, 1})
	assert.ErrorIs(t, err, core.ErrInvalidLength)
}

func TestMarshalUnmarshalCorpusMeta(t *testing.T) {
	meta := &core.CorpusMeta{
		EmbeddingModel: "embeddinggemma",
		Dimension:      768,
		UpdatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	decoded, err := UnmarshalCorpusMeta(MarshalCorpusMeta(meta))
	require.NoError(t, err)
	assert.Equal(t, meta.EmbeddingModel, decoded.EmbeddingModel)
	assert.Equal(t, meta.Dimension, decoded.Dimension)
	assert.True(t, meta.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", "text"), CacheKey("m", "text"))
	assert.NotEqual(t, CacheKey("m1", "text"), CacheKey("m2", "text"))
	assert.NotEqual(t, CacheKey("m", "ab"), CacheKey("ma", "b"))
}
