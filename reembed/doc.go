// Package reembed recomputes the embeddings of an existing corpus, for
// example after switching embedding models.
//
// Chunks are read in ID order from the chunk repository or the in-memory
// snapshot, embedded in batches with retry and exponential backoff, and
// swapped into the corpus in a single step. Progress is written to an
// io.Writer.
package reembed
