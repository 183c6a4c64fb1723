// Package corpus holds the ordered chunk corpus and its derived indexes.
//
// A Store publishes immutable Snapshots. Every append rebuilds the lexical,
// vector and keyword indexes from the entire corpus and swaps in a new
// snapshot under the write lock. Readers take one snapshot and use it for
// the whole query, so texts, embeddings and indexes always come from the
// same corpus state.
//
// When a storage.ChunkRepository is attached, chunks are persisted before
// the new snapshot is published. A failed write leaves the corpus unchanged.
package corpus
