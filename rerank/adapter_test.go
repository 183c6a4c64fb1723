package rerank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/ai/mock"
	"github.com/poiesic/ragfuse/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates() []Candidate {
	return []Candidate{
		{DocID: 10, Text: "alpha", Score: 0.05},
		{DocID: 11, Text: "beta", Score: 0.04},
		{DocID: 12, Text: "same text", Score: 0.03},
		{DocID: 13, Text: "same text", Score: 0.02},
		{DocID: 14, Text: "epsilon", Score: 0.01},
	}
}

func ids(docs []core.RetrievedDocument) []core.ID {
	out := make([]core.ID, len(docs))
	for i, d := range docs {
		out[i] = d.DocID
	}
	return out
}

func stub(results []ai.RerankResult, err error) *mock.MockReranker {
	r := mock.NewMockReranker()
	r.RerankFunc = func(context.Context, string, []string, int) ([]ai.RerankResult, error) {
		return results, err
	}
	return r
}

func newAdapter(t *testing.T, r ai.Reranker, opts ...Option) *Adapter {
	t.Helper()
	a, err := New(r, opts...)
	require.NoError(t, err)
	return a
}

func TestRerank_ErrorFallsBackToFusedOrder(t *testing.T) {
	r := stub(nil, errors.New("503 service unavailable"))
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 3)

	assert.True(t, out.FellBack)
	assert.Contains(t, out.Reason, "503")
	assert.Equal(t, []core.ID{10, 11, 12}, ids(out.Documents))
	for _, d := range out.Documents {
		assert.Nil(t, d.RerankScore)
	}
	assert.Equal(t, 0.05, out.Documents[0].Score)
	assert.Equal(t, 1, r.CallCount(), "never retried")
}

func TestRerank_NotConfigured(t *testing.T) {
	a := newAdapter(t, nil)
	assert.False(t, a.Enabled())

	out := a.Rerank(context.Background(), "q", candidates(), 2)
	assert.True(t, out.FellBack)
	assert.Equal(t, ReasonNotConfigured, out.Reason)
	assert.Equal(t, []core.ID{10, 11}, ids(out.Documents))
}

func TestRerank_Timeout(t *testing.T) {
	r := mock.NewMockReranker()
	r.RerankFunc = func(ctx context.Context, _ string, _ []string, _ int) ([]ai.RerankResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a := newAdapter(t, r, WithTimeout(20*time.Millisecond))

	start := time.Now()
	out := a.Rerank(context.Background(), "q", candidates(), 2)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, out.FellBack)
	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.Equal(t, []core.ID{10, 11}, ids(out.Documents))
}

func TestRerank_Reorders(t *testing.T) {
	r := stub([]ai.RerankResult{
		{Index: 4, Score: 0.9},
		{Index: 1, Score: 0.7},
		{Index: 0, Score: 0.2},
	}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 3)
	require.False(t, out.FellBack)
	assert.Empty(t, out.Reason)
	assert.Equal(t, []core.ID{14, 11, 10}, ids(out.Documents))
	require.NotNil(t, out.Documents[0].RerankScore)
	assert.Equal(t, 0.9, *out.Documents[0].RerankScore)
	assert.Equal(t, 0.01, out.Documents[0].Score, "fused score is kept")
	assert.Zero(t, out.Padded)
}

func TestRerank_SortsUnorderedResponse(t *testing.T) {
	r := stub([]ai.RerankResult{
		{Index: 0, Score: 0.1},
		{Index: 2, Score: 0.8},
		{Index: 3, Score: 0.8},
	}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 3)
	assert.Equal(t, []core.ID{12, 13, 10}, ids(out.Documents), "equal scores keep fused position order")
}

func TestRerank_PadsShortResponse(t *testing.T) {
	r := stub([]ai.RerankResult{{Index: 2, Score: 0.5}}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 4)
	require.False(t, out.FellBack)
	assert.Equal(t, []core.ID{12, 10, 11, 13}, ids(out.Documents))
	assert.Equal(t, 3, out.Padded)
	assert.NotNil(t, out.Documents[0].RerankScore)
	assert.Nil(t, out.Documents[1].RerankScore)
}

func TestRerank_PadsUntilCandidatesExhausted(t *testing.T) {
	r := stub([]ai.RerankResult{}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates()[:2], 5)
	assert.Equal(t, []core.ID{10, 11}, ids(out.Documents))
	assert.Equal(t, 2, out.Padded)
}

func TestRerank_MapsByPositionNotText(t *testing.T) {
	// Candidates 2 and 3 share text; the result names position 3.
	r := stub([]ai.RerankResult{{Index: 3, Score: 0.99}}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 1)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, core.ID(13), out.Documents[0].DocID)
}

func TestRerank_TruncatesLongResponse(t *testing.T) {
	r := stub([]ai.RerankResult{
		{Index: 0, Score: 0.1}, {Index: 1, Score: 0.2}, {Index: 2, Score: 0.3}, {Index: 3, Score: 0.4},
	}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 2)
	assert.Equal(t, []core.ID{13, 12}, ids(out.Documents))
}

func TestRerank_InvalidResponse(t *testing.T) {
	tests := []struct {
		name    string
		results []ai.RerankResult
	}{
		{"index too large", []ai.RerankResult{{Index: 5, Score: 1}}},
		{"negative index", []ai.RerankResult{{Index: -1, Score: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, stub(tt.results, nil))
			out := a.Rerank(context.Background(), "q", candidates(), 2)
			assert.True(t, out.FellBack)
			assert.Contains(t, out.Reason, "out of range")
			assert.Equal(t, []core.ID{10, 11}, ids(out.Documents))
		})
	}
}

func TestRerank_DuplicateIndexesKeepFirst(t *testing.T) {
	r := stub([]ai.RerankResult{{Index: 1, Score: 0.9}, {Index: 1, Score: 0.1}}, nil)
	a := newAdapter(t, r)

	out := a.Rerank(context.Background(), "q", candidates(), 2)
	assert.Equal(t, []core.ID{11, 10}, ids(out.Documents))
	assert.Equal(t, 0.9, *out.Documents[0].RerankScore)
}

func TestRerank_EdgeCases(t *testing.T) {
	a := newAdapter(t, mock.NewMockReranker())

	out := a.Rerank(context.Background(), "q", nil, 5)
	assert.Empty(t, out.Documents)
	assert.False(t, out.FellBack)

	out = a.Rerank(context.Background(), "alpha", candidates(), 0)
	assert.Len(t, out.Documents, 5, "topN <= 0 keeps every candidate")
}

func TestNew_NegativeTimeout(t *testing.T) {
	_, err := New(nil, WithTimeout(-time.Second))
	assert.Error(t, err)
}

func TestRerankFirst_PadsAndFallsBackFromAllCandidates(t *testing.T) {
	t.Run("offers only the first candidates", func(t *testing.T) {
		var offered []string
		var requested int
		r := mock.NewMockReranker()
		r.RerankFunc = func(_ context.Context, _ string, docs []string, topN int) ([]ai.RerankResult, error) {
			offered, requested = docs, topN
			return []ai.RerankResult{{Index: 1, Score: 0.9}}, nil
		}
		a := newAdapter(t, r)

		out := a.RerankFirst(context.Background(), "q", candidates(), 2, 4)
		assert.Equal(t, []string{"alpha", "beta"}, offered)
		assert.Equal(t, 2, requested)
		assert.False(t, out.FellBack)
		assert.Equal(t, []core.ID{11, 10, 12, 13}, ids(out.Documents))
		assert.Equal(t, 3, out.Padded)
	})

	t.Run("fallback keeps top n", func(t *testing.T) {
		a := newAdapter(t, stub(nil, errors.New("boom")))
		out := a.RerankFirst(context.Background(), "q", candidates(), 2, 4)
		assert.True(t, out.FellBack)
		assert.Equal(t, []core.ID{10, 11, 12, 13}, ids(out.Documents))
	})

	t.Run("index beyond offered candidates is invalid", func(t *testing.T) {
		a := newAdapter(t, stub([]ai.RerankResult{{Index: 3, Score: 1}}, nil))
		out := a.RerankFirst(context.Background(), "q", candidates(), 2, 3)
		assert.True(t, out.FellBack)
		assert.Equal(t, []core.ID{10, 11, 12}, ids(out.Documents))
	})

	t.Run("limit out of range offers everything", func(t *testing.T) {
		var offered int
		r := mock.NewMockReranker()
		r.RerankFunc = func(_ context.Context, _ string, docs []string, _ int) ([]ai.RerankResult, error) {
			offered = len(docs)
			return nil, nil
		}
		a := newAdapter(t, r)
		a.RerankFirst(context.Background(), "q", candidates(), 0, 2)
		assert.Equal(t, 5, offered)
	})
}
