package mock

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/poiesic/ragfuse/ai"
)

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	// RerankFunc is called by Rerank if set.
	// If nil, scores each document by the fraction of query words it contains.
	RerankFunc func(ctx context.Context, query string, documents []string, topN int) ([]ai.RerankResult, error)

	callCount atomic.Int64
}

// NewMockReranker creates a mock reranker with default word-overlap scoring.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank scores documents against query.
func (m *MockReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ai.RerankResult, error) {
	m.callCount.Add(1)

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, documents, topN)
	}

	words := strings.Fields(strings.ToLower(query))
	results := make([]ai.RerankResult, len(documents))
	for i, doc := range documents {
		lower := strings.ToLower(doc)
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		score := 0.0
		if len(words) > 0 {
			score = float64(hits) / float64(len(words))
		}
		results[i] = ai.RerankResult{Index: i, Score: score}
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// CallCount returns the number of Rerank calls.
func (m *MockReranker) CallCount() int {
	return int(m.callCount.Load())
}
