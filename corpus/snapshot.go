package corpus

import (
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/rank"
	"github.com/poiesic/ragfuse/text"
)

// Snapshot is an immutable view of the corpus and the indexes built from it.
// Callers must not modify the slices it exposes.
type Snapshot struct {
	// Version increases by one with every published state.
	Version uint64
	// Texts holds chunk text by ID.
	Texts []string
	// Embeddings holds chunk embeddings by ID.
	Embeddings [][]float32
	// Lexical is the BM25 index over Texts.
	Lexical *rank.LexicalIndex
	// Vector is the flat L2 index over Embeddings. Nil for an empty corpus.
	Vector *rank.VectorIndex
	// Keyword is the keyword-overlap ranker over Texts.
	Keyword *rank.KeywordRanker
}

// Len returns the number of chunks.
func (s *Snapshot) Len() int {
	return len(s.Texts)
}

// Empty reports whether the snapshot holds no chunks.
func (s *Snapshot) Empty() bool {
	return len(s.Texts) == 0
}

// Dim returns the embedding dimensionality, or 0 for an empty corpus.
func (s *Snapshot) Dim() int {
	if s.Vector == nil {
		return 0
	}
	return s.Vector.Dim()
}

// Text returns the text of chunk id.
func (s *Snapshot) Text(id core.ID) (string, bool) {
	if uint64(id) >= uint64(len(s.Texts)) {
		return "", false
	}
	return s.Texts[id], true
}

// build derives all indexes for texts and embeddings.
func build(version uint64, texts []string, embeddings [][]float32, tokenizer text.Tokenizer, params rank.BM25Params) (*Snapshot, error) {
	snap := &Snapshot{
		Version:    version,
		Texts:      texts,
		Embeddings: embeddings,
		Lexical:    rank.NewLexicalIndex(texts, tokenizer, params),
		Keyword:    rank.NewKeywordRanker(texts),
	}
	if len(embeddings) > 0 {
		vector, err := rank.NewVectorIndex(embeddings)
		if err != nil {
			return nil, err
		}
		snap.Vector = vector
	}
	return snap, nil
}
