package rank

import (
	"slices"
	"strings"

	"github.com/poiesic/ragfuse/core"
)

// KeywordRanker scores documents by how many distinct keywords they contain.
type KeywordRanker struct {
	lowered []string
}

// NewKeywordRanker creates a ranker over texts. Text i gets ID i.
func NewKeywordRanker(texts []string) *KeywordRanker {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}
	return &KeywordRanker{lowered: lowered}
}

// Score counts, per document, the distinct keywords occurring as
// case-insensitive substrings. Documents without matches are excluded.
// Results are ordered by count, highest first, ties by ascending ID, and
// truncated to k when k > 0.
func (r *KeywordRanker) Score(keywords []string, k int) core.RankedList {
	hits := make(core.RankedList, 0)

	distinct := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !slices.Contains(distinct, kw) {
			distinct = append(distinct, kw)
		}
	}
	if len(distinct) == 0 {
		return hits
	}

	for i, doc := range r.lowered {
		count := 0
		for _, kw := range distinct {
			if strings.Contains(doc, kw) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, core.Hit{DocID: core.ID(i), Score: float64(count)})
		}
	}
	return topK(hits, k)
}
