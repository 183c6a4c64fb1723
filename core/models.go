package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID identifies a chunk in the corpus.
// Chunk IDs are assigned by append order and equal the chunk's zero-based
// position in the corpus.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Chunk is a contiguous segment of source text stored as one retrievable unit.
// Chunks are created only by ingestion and are never mutated or deleted.
type Chunk struct {
	Id        ID
	Text      string
	Embedding []float32
}

// Hit is a single entry of a RankedList.
type Hit struct {
	DocID ID
	Score float64
}

// RankedList is the ordered output of exactly one ranker.
// Score scales are ranker-specific and not comparable across rankers.
type RankedList []Hit

// IDs returns the document IDs of the list in order.
func (l RankedList) IDs() []ID {
	ids := make([]ID, len(l))
	for i, h := range l {
		ids[i] = h.DocID
	}
	return ids
}

// FusionResult is a document with its accumulated reciprocal-rank score.
type FusionResult struct {
	DocID ID
	Score float64
}

// RetrievedDocument is the final output unit of a query.
type RetrievedDocument struct {
	DocID       ID       `json:"doc_id"`
	Content     string   `json:"content"`
	Score       float64  `json:"score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// IngestResult reports the outcome of an ingestion operation.
type IngestResult struct {
	NumChunks int `json:"num_chunks"`
	TotalDocs int `json:"total_docs"`
}

// Documents is a read-only listing of the corpus.
type Documents struct {
	TotalDocs int      `json:"total_docs"`
	Documents []string `json:"documents"`
}

// CorpusMeta describes the persisted corpus as a whole.
type CorpusMeta struct {
	// EmbeddingModel is the model that produced the stored embeddings.
	EmbeddingModel string
	// Dimension is the dimensionality shared by all stored embeddings.
	Dimension int
	// UpdatedAt is set by the repository on every save.
	UpdatedAt time.Time
}
