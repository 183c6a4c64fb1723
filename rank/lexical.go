package rank

import (
	"math"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/text"
)

// BM25Params holds the tunable constants of the lexical ranker.
type BM25Params struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalization strength.
	B float64
	// Epsilon scales the floor applied to negative IDF values, as a
	// fraction of the mean IDF.
	Epsilon float64
}

// DefaultBM25Params returns the Okapi defaults k1=1.5, b=0.75, epsilon=0.25.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// LexicalIndex is an Okapi BM25 model over a fixed set of documents.
// It is immutable once built and safe for concurrent use.
type LexicalIndex struct {
	params    BM25Params
	tokenizer text.Tokenizer
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// NewLexicalIndex builds a BM25 index over docs. Document i gets ID i.
// A nil tokenizer selects text.DefaultTokenizer.
func NewLexicalIndex(docs []string, tokenizer text.Tokenizer, params BM25Params) *LexicalIndex {
	if tokenizer == nil {
		tokenizer = text.DefaultTokenizer{}
	}
	ix := &LexicalIndex{
		params:    params,
		tokenizer: tokenizer,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, doc := range docs {
		tokens := tokenizer.Tokenize(doc)
		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}
		for t := range freqs {
			docFreq[t]++
		}
		ix.termFreqs[i] = freqs
		ix.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		ix.avgDocLen = float64(total) / float64(len(docs))
	}

	n := float64(len(docs))
	var idfSum float64
	var negative []string
	for term, freq := range docFreq {
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		ix.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(ix.idf) > 0 {
		floor := params.Epsilon * idfSum / float64(len(ix.idf))
		for _, term := range negative {
			ix.idf[term] = floor
		}
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *LexicalIndex) Len() int {
	return len(ix.docLens)
}

// Score tokenizes query with the index tokenizer and ranks documents.
// See ScoreTokens.
func (ix *LexicalIndex) Score(query string, k int) core.RankedList {
	return ix.ScoreTokens(ix.tokenizer.Tokenize(query), k)
}

// ScoreTokens ranks documents containing at least one query token by BM25
// score, highest first, ties by ascending ID. At most k hits are returned;
// k <= 0 returns every match. An empty token list yields an empty list.
func (ix *LexicalIndex) ScoreTokens(tokens []string, k int) core.RankedList {
	hits := make(core.RankedList, 0)
	if len(tokens) == 0 || ix.Len() == 0 {
		return hits
	}

	k1, b := ix.params.K1, ix.params.B
	for i, freqs := range ix.termFreqs {
		var score float64
		matched := false
		for _, t := range tokens {
			tf := float64(freqs[t])
			if tf == 0 {
				continue
			}
			matched = true
			norm := 1 - b
			if ix.avgDocLen > 0 {
				norm += b * float64(ix.docLens[i]) / ix.avgDocLen
			}
			score += ix.idf[t] * (tf * (k1 + 1) / (tf + k1*norm))
		}
		if matched {
			hits = append(hits, core.Hit{DocID: core.ID(i), Score: score})
		}
	}
	return topK(hits, k)
}
