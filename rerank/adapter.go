// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package rerank adapts an ai.Reranker to the query pipeline.
//
// The adapter never fails a query. A reranker error, timeout or malformed
// response selects the fused order instead. A short response is padded with
// the best remaining fused candidates. Results are mapped back to
// candidates by position, never by text.
package rerank

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/core"
)

// Fallback reasons reported in Outcome.Reason.
const (
	ReasonNotConfigured = "reranker not configured"
	ReasonTimeout       = "reranker timed out"
)

// ErrInvalidIndex indicates a reranker result pointing outside the candidates.
var ErrInvalidIndex = errors.New("rerank result index out of range")

// Candidate is a fused document offered to the reranker.
// Candidates are passed in fused order, best first.
type Candidate struct {
	DocID core.ID
	Text  string
	Score float64
}

// Outcome is the result of Adapter.Rerank.
type Outcome struct {
	// Documents holds at most topN documents. Documents scored by the
	// reranker carry a RerankScore; padded or fallback documents do not.
	Documents []core.RetrievedDocument
	// FellBack reports that the fused order was used instead of reranker scores.
	FellBack bool
	// Reason explains the fallback. Empty when FellBack is false.
	Reason string
	// Padded counts documents appended from the fused order after a short response.
	Padded int
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithTimeout bounds each reranker call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) error {
		if timeout < 0 {
			return errors.New("timeout cannot be negative")
		}
		a.timeout = timeout
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}

// Adapter applies a reranker with timeout, fallback and padding.
type Adapter struct {
	reranker ai.Reranker
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an Adapter. reranker may be nil, in which case every call
// falls back to the fused order.
func New(reranker ai.Reranker, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		reranker: reranker,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "rerank")
	return a, nil
}

// Enabled reports whether a reranker is attached.
func (a *Adapter) Enabled() bool {
	return a.reranker != nil
}

// Rerank re-scores candidates for query and returns at most topN documents.
// It is never retried; any failure yields the fused order truncated to topN.
func (a *Adapter) Rerank(ctx context.Context, query string, candidates []Candidate, topN int) Outcome {
	return a.RerankFirst(ctx, query, candidates, len(candidates), topN)
}

// RerankFirst is Rerank offering only the first limit candidates to the
// reranker. Padding and fallback still draw from all candidates in fused
// order. A limit outside [1, len(candidates)] offers every candidate.
func (a *Adapter) RerankFirst(ctx context.Context, query string, candidates []Candidate, limit, topN int) Outcome {
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	if len(candidates) == 0 {
		return Outcome{Documents: []core.RetrievedDocument{}}
	}
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	if a.reranker == nil {
		return fallback(candidates, topN, ReasonNotConfigured)
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	texts := make([]string, limit)
	for i, c := range candidates[:limit] {
		texts[i] = c.Text
	}

	start := time.Now()
	results, err := a.reranker.Rerank(callCtx, query, texts, min(topN, limit))
	if err != nil {
		reason := fmt.Sprintf("reranker failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		a.logger.Warn("rerank failed, using fused order", "err", err, "elapsed", time.Since(start))
		return fallback(candidates, topN, reason)
	}

	scored, err := validate(results, limit)
	if err != nil {
		a.logger.Warn("invalid rerank response, using fused order", "err", err)
		return fallback(candidates, topN, fmt.Sprintf("invalid reranker response: %v", err))
	}

	out := assemble(candidates, scored, topN)
	a.logger.Debug("reranked candidates",
		"candidates", len(candidates),
		"offered", limit,
		"scored", len(scored),
		"padded", out.Padded,
		"elapsed", time.Since(start))
	return out
}

// validate rejects out-of-range indexes and drops repeated indexes, keeping
// the first result for each. The survivors are ordered by score, highest
// first, ties by fused position.
func validate(results []ai.RerankResult, n int) ([]ai.RerankResult, error) {
	seen := make(map[int]bool, len(results))
	scored := make([]ai.RerankResult, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= n {
			return nil, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, r.Index, n)
		}
		if seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		scored = append(scored, r)
	}
	slices.SortStableFunc(scored, func(x, y ai.RerankResult) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})
	return scored, nil
}

// assemble truncates scored to topN and pads with unscored candidates in
// fused order.
func assemble(candidates []Candidate, scored []ai.RerankResult, topN int) Outcome {
	if len(scored) > topN {
		scored = scored[:topN]
	}

	docs := make([]core.RetrievedDocument, 0, topN)
	used := make([]bool, len(candidates))
	for _, r := range scored {
		c := candidates[r.Index]
		score := r.Score
		docs = append(docs, core.RetrievedDocument{
			DocID:       c.DocID,
			Content:     c.Text,
			Score:       c.Score,
			RerankScore: &score,
		})
		used[r.Index] = true
	}

	padded := 0
	for i := 0; i < len(candidates) && len(docs) < topN; i++ {
		if used[i] {
			continue
		}
		docs = append(docs, fused(candidates[i]))
		padded++
	}
	return Outcome{Documents: docs, Padded: padded}
}

func fallback(candidates []Candidate, topN int, reason string) Outcome {
	docs := make([]core.RetrievedDocument, topN)
	for i := range docs {
		docs[i] = fused(candidates[i])
	}
	return Outcome{Documents: docs, FellBack: true, Reason: reason}
}

func fused(c Candidate) core.RetrievedDocument {
	return core.RetrievedDocument{DocID: c.DocID, Content: c.Text, Score: c.Score}
}
