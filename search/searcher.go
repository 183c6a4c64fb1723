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


package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/poiesic/ragfuse/fusion"
	"github.com/poiesic/ragfuse/rerank"
	"github.com/poiesic/ragfuse/text"
)

// Defaults for the retrieval parameters.
const (
	DefaultTopK             = 10
	DefaultTopN             = 5
	DefaultRerankCandidates = 10
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 512

	// maxRankRetries bounds how often ranking restarts when the corpus
	// changes while the rankers run.
	maxRankRetries = 1
)

// Searcher answers queries over a corpus store.
type Searcher struct {
	store     *corpus.Store
	embedder  ai.Embedder
	generator ai.Generator
	reranker  *rerank.Adapter
	expander  text.Expander
	extractor text.KeywordExtractor

	fusionK          float64
	topK             int
	topN             int
	rerankCandidates int
	threshold        float64
	keywordSignal    bool
	normalize        bool
	generateOpts     ai.GenerateOptions
	generateTimeout  time.Duration

	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithGenerator sets the answer generator. Without one every answer is
// the placeholder.
func WithGenerator(generator ai.Generator) Option {
	return func(s *Searcher) error {
		s.generator = generator
		return nil
	}
}

// WithReranker sets the rerank adapter. A nil adapter, or one without a
// reranker, skips the rerank stage.
func WithReranker(adapter *rerank.Adapter) Option {
	return func(s *Searcher) error {
		s.reranker = adapter
		return nil
	}
}

// WithExpander sets the query expander applied before lexical and keyword
// ranking.
func WithExpander(expander text.Expander) Option {
	return func(s *Searcher) error {
		s.expander = expander
		return nil
	}
}

// WithKeywordExtractor sets the keyword extractor.
// Default is text.NewKeywordExtractor(nil).
func WithKeywordExtractor(extractor text.KeywordExtractor) Option {
	return func(s *Searcher) error {
		if extractor == nil {
			return errors.New("keyword extractor cannot be nil")
		}
		s.extractor = extractor
		return nil
	}
}

// WithFusionK sets the reciprocal rank fusion constant.
// Default is fusion.DefaultK.
func WithFusionK(k float64) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("%w: rrf k must be positive, got %v", core.ErrInput, k)
		}
		s.fusionK = k
		return nil
	}
}

// WithTopK sets the number of hits taken from each ranker.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("%w: top-k must be positive, got %d", core.ErrInput, k)
		}
		s.topK = k
		return nil
	}
}

// WithTopN sets the number of documents returned.
func WithTopN(n int) Option {
	return func(s *Searcher) error {
		if n <= 0 {
			return fmt.Errorf("%w: top-n must be positive, got %d", core.ErrInput, n)
		}
		s.topN = n
		return nil
	}
}

// WithRerankCandidates sets how many fused documents are offered to the
// reranker. Results shorter than top-n are still padded from the rest of
// the fused list.
func WithRerankCandidates(n int) Option {
	return func(s *Searcher) error {
		if n <= 0 {
			return fmt.Errorf("%w: rerank candidates must be positive, got %d", core.ErrInput, n)
		}
		s.rerankCandidates = n
		return nil
	}
}

// WithThreshold drops vector neighbors whose similarity is below threshold.
// Zero disables the filter.
func WithThreshold(threshold float64) Option {
	return func(s *Searcher) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: similarity threshold must be in [0, 1], got %v", core.ErrInput, threshold)
		}
		s.threshold = threshold
		return nil
	}
}

// WithKeywordSignal enables or disables the keyword-overlap ranker.
// Default is enabled.
func WithKeywordSignal(enabled bool) Option {
	return func(s *Searcher) error {
		s.keywordSignal = enabled
		return nil
	}
}

// WithNormalize L2-normalizes query embeddings. Use it when the corpus was
// ingested with normalized embeddings.
func WithNormalize(normalize bool) Option {
	return func(s *Searcher) error {
		s.normalize = normalize
		return nil
	}
}

// WithGeneration sets the sampling temperature and token budget.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(s *Searcher) error {
		if maxTokens <= 0 {
			return fmt.Errorf("%w: max tokens must be positive, got %d", core.ErrInput, maxTokens)
		}
		s.generateOpts = ai.GenerateOptions{Temperature: temperature, MaxTokens: maxTokens}
		return nil
	}
}

// WithGenerateTimeout bounds each generation call. Zero disables the bound.
func WithGenerateTimeout(timeout time.Duration) Option {
	return func(s *Searcher) error {
		if timeout < 0 {
			return errors.New("generate timeout cannot be negative")
		}
		s.generateTimeout = timeout
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store *corpus.Store, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:            store,
		embedder:         embedder,
		extractor:        text.NewKeywordExtractor(nil),
		fusionK:          fusion.DefaultK,
		topK:             DefaultTopK,
		topN:             DefaultTopN,
		rerankCandidates: DefaultRerankCandidates,
		keywordSignal:    true,
		generateOpts:     ai.GenerateOptions{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens},
		logger:           slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Query retrieves the documents most relevant to query and generates an
// answer from them.
func (s *Searcher) Query(ctx context.Context, query string) (*QueryResult, error) {
	return s.QueryWithMonitor(ctx, query, nil)
}

// QueryWithMonitor is Query with monitoring.
// The monitor receives callbacks at each stage of the pipeline.
func (s *Searcher) QueryWithMonitor(ctx context.Context, query string, monitor QueryMonitor) (*QueryResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	r := &run{
		searcher: s,
		monitor:  monitor,
		state:    StateReceived,
		result: &QueryResult{
			RequestID: uuid.NewString(),
			Query:     strings.TrimSpace(query),
		},
	}
	r.logger = s.logger.With("requestID", r.result.RequestID)
	monitor.Start(r.result.RequestID, r.result.Query)

	return r.execute(ctx)
}

// run carries the state of one query.
type run struct {
	searcher *Searcher
	monitor  QueryMonitor
	logger   *slog.Logger
	state    State
	result   *QueryResult
}

func (r *run) advance(to State) error {
	if !CanTransition(r.state, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.state, to)
	}
	r.monitor.Transition(r.state, to)
	r.logger.Debug("query state", "from", r.state, "to", to)
	r.state = to
	return nil
}

func (r *run) fail(err error) (*QueryResult, error) {
	failed := r.state
	if CanTransition(r.state, StateError) {
		r.monitor.Transition(r.state, StateError)
		r.state = StateError
	}
	r.monitor.Fail(failed, err)
	r.logger.Debug("query failed", "state", failed, "err", err)
	return nil, err
}

func (r *run) execute(ctx context.Context) (*QueryResult, error) {
	s := r.searcher
	query := r.result.Query

	// Received
	if err := core.ValidateQuery(query); err != nil {
		return r.fail(err)
	}
	snap := s.store.Snapshot()
	if snap.Empty() {
		return r.fail(fmt.Errorf("%w: %w", core.ErrState, core.ErrNoDocuments))
	}

	// Expanded
	expanded := query
	if s.expander != nil {
		expanded = s.expander.Expand(query)
	}
	if err := r.advance(StateExpanded); err != nil {
		return r.fail(err)
	}
	r.monitor.AfterExpansion(expanded)

	// Ranked
	var lists []core.RankedList
	for attempt := 0; ; attempt++ {
		var err error
		lists, err = r.rank(ctx, snap, query, expanded)
		if err != nil {
			return r.fail(err)
		}
		latest := s.store.Snapshot()
		if latest.Version == snap.Version || attempt == maxRankRetries {
			break
		}
		// An append published while the rankers ran; rank the newer corpus.
		r.logger.Debug("corpus changed during ranking, retrying",
			"version", snap.Version,
			"latest", latest.Version)
		r.result.Signals = Signals{}
		snap = latest
	}
	if err := r.advance(StateRanked); err != nil {
		return r.fail(err)
	}

	// Fused
	fused, err := fusion.Fuse(s.fusionK, lists...)
	if err != nil {
		return r.fail(err)
	}
	if err := r.advance(StateFused); err != nil {
		return r.fail(err)
	}

	// Deduplicated
	fused = fusion.Dedup(fused)
	if err := r.advance(StateDeduplicated); err != nil {
		return r.fail(err)
	}
	r.monitor.AfterFusion(fused)

	candidates, err := candidatesFor(snap, fused)
	if err != nil {
		return r.fail(err)
	}

	// Reranked
	var docs []core.RetrievedDocument
	if s.reranker != nil && s.reranker.Enabled() {
		outcome := s.reranker.RerankFirst(ctx, query, candidates, s.rerankCandidates, s.topN)
		if outcome.FellBack {
			r.result.Signals.skip(SignalRerank, outcome.Reason)
		} else {
			r.result.Signals.Reranked = true
		}
		docs = outcome.Documents
		if err := r.advance(StateReranked); err != nil {
			return r.fail(err)
		}
		r.monitor.AfterRerank(outcome)
	} else {
		docs = fusedDocuments(candidates, s.topN)
	}

	// Assembled
	r.result.RetrievedDocs = docs
	r.result.Answer = r.generate(ctx, query, docs)
	if r.result.Answer.Degraded {
		r.result.Signals.skip(SignalGeneration, r.result.Answer.Reason)
	}
	if err := r.advance(StateAssembled); err != nil {
		return r.fail(err)
	}

	if err := r.advance(StateDone); err != nil {
		return r.fail(err)
	}
	r.logger.Info("query answered",
		"documents", len(docs),
		"signals", r.result.Signals.Used,
		"reranked", r.result.Signals.Reranked,
		"degraded", r.result.Answer.Degraded)
	r.monitor.Finish(r.result)
	return r.result, nil
}

// rank runs the enabled rankers in parallel against snap and returns their
// lists in fusion order: lexical, vector, keyword.
func (r *run) rank(ctx context.Context, snap *corpus.Snapshot, query, expanded string) ([]core.RankedList, error) {
	s := r.searcher
	var lexical, vector, keyword core.RankedList
	var vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = snap.Lexical.Score(expanded, s.topK)
		return nil
	})
	g.Go(func() error {
		embedding, err := s.embedder.EmbedText(gctx, query)
		if err != nil {
			vectorErr = fmt.Errorf("%w: embed query: %w", core.ErrCollaborator, err)
			return nil
		}
		if s.normalize {
			embedding = ai.NormalizeL2(embedding)
		}
		hits, err := snap.Vector.Search(embedding, s.topK, s.threshold)
		if err != nil {
			return err
		}
		vector = hits
		return nil
	})
	if s.keywordSignal {
		g.Go(func() error {
			keyword = snap.Keyword.Score(s.extractor.Keywords(expanded), s.topK)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals := &r.result.Signals
	observed := make(map[Signal]core.RankedList, 3)
	lists := make([]core.RankedList, 0, 3)

	signals.Used = append(signals.Used, SignalLexical)
	observed[SignalLexical] = lexical
	lists = append(lists, lexical)

	if vectorErr != nil {
		r.logger.Warn("query embedding failed, skipping vector signal", "err", vectorErr)
		signals.skip(SignalVector, vectorErr.Error())
	} else {
		signals.Used = append(signals.Used, SignalVector)
		observed[SignalVector] = vector
		lists = append(lists, vector)
	}

	if s.keywordSignal {
		signals.Used = append(signals.Used, SignalKeyword)
		observed[SignalKeyword] = keyword
		lists = append(lists, keyword)
	} else {
		signals.skip(SignalKeyword, "disabled")
	}

	r.monitor.AfterRanking(observed)
	return lists, nil
}

// generate asks the generator for an answer. It never fails the query.
func (r *run) generate(ctx context.Context, query string, docs []core.RetrievedDocument) Answer {
	s := r.searcher
	if s.generator == nil {
		return degraded("generator not configured")
	}

	callCtx := ctx
	if s.generateTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.generateTimeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := s.generator.Generate(callCtx, BuildPrompt(query, docs), s.generateOpts)
	if err != nil {
		err = fmt.Errorf("%w: generate answer: %w", core.ErrCollaborator, err)
		r.logger.Warn("answer generation failed, returning placeholder", "err", err, "elapsed", time.Since(start))
		return degraded(err.Error())
	}
	r.logger.Debug("answer generated", "elapsed", time.Since(start))
	return generated(answer)
}

// candidatesFor resolves fused IDs to their text in snap.
func candidatesFor(snap *corpus.Snapshot, fused []core.FusionResult) ([]rerank.Candidate, error) {
	candidates := make([]rerank.Candidate, len(fused))
	for i, f := range fused {
		content, ok := snap.Text(f.DocID)
		if !ok {
			return nil, fmt.Errorf("%w: %w: id %d, corpus has %d", core.ErrConsistency, ErrMissingDocument, f.DocID, snap.Len())
		}
		candidates[i] = rerank.Candidate{DocID: f.DocID, Text: content, Score: f.Score}
	}
	return candidates, nil
}

// fusedDocuments returns the first n candidates in fused order.
func fusedDocuments(candidates []rerank.Candidate, n int) []core.RetrievedDocument {
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	docs := make([]core.RetrievedDocument, len(candidates))
	for i, c := range candidates {
		docs[i] = core.RetrievedDocument{DocID: c.DocID, Content: c.Text, Score: c.Score}
	}
	return docs
}
