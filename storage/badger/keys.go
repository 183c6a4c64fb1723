package badger

import (
	"encoding/binary"

	"github.com/poiesic/ragfuse/core"
)

// Key prefixes for different data types
const (
	chunkPrefix          = "chunk:"
	embeddingCachePrefix = "embc:"
	corpusMetaKey        = "meta:corpus"
)

// makeIDKey generates prefix followed by the big-endian ID.
// BigEndian order makes lexicographic key order match ID order.
func makeIDKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return makeIDKey(chunkPrefix, id)
}

// makeEmbeddingCacheKey generates a key for a cached embedding.
func makeEmbeddingCacheKey(key core.ID) []byte {
	return makeIDKey(embeddingCachePrefix, key)
}

// idFromKey extracts the ID suffix of a key built by makeIDKey.
func idFromKey(prefix string, key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(prefix):]))
}
