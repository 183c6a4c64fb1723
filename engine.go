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


package ragfuse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/ai/openai"
	"github.com/poiesic/ragfuse/config"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/corpus"
	"github.com/poiesic/ragfuse/ingestion"
	"github.com/poiesic/ragfuse/reembed"
	"github.com/poiesic/ragfuse/rerank"
	"github.com/poiesic/ragfuse/search"
	"github.com/poiesic/ragfuse/storage/badger"
	"github.com/poiesic/ragfuse/text"
)

// ErrModelMismatch indicates a persisted corpus embedded with a different
// model than the one configured.
var ErrModelMismatch = errors.New("corpus was embedded with a different model, run reembed")

// Engine wires the corpus, its storage and the AI collaborators together.
type Engine struct {
	cfg      *config.Config
	repos    *badger.Repositories
	store    *corpus.Store
	provider ai.AIProvider
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	logger   *slog.Logger

	// metaMu guards meta
	metaMu sync.Mutex
	meta   *core.CorpusMeta
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	cfg      *config.Config
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithConfig sets the configuration. Default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *engineOptions) {
		o.cfg = cfg
	}
}

// WithProvider sets the AI provider instead of creating an OpenAI-compatible
// one from the configuration. The engine closes it on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open creates an Engine. When a storage path is configured the persisted
// corpus is loaded and every index is rebuilt from it.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	// Apply options
	options := &engineOptions{
		cfg:    config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	aiCfg, err := cfg.ToAIConfig()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: options.logger.With("component", "engine"),
	}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	e.provider = options.provider
	if e.provider == nil {
		e.provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			return nil, err
		}
	}

	storeOpts := []corpus.Option{corpus.WithLogger(options.logger)}
	if cfg.Storage.Path != "" {
		e.repos, err = badger.OpenRepositories(cfg.Storage.Path, false)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, corpus.WithRepository(e.repos.Chunks))
	}

	e.store, err = corpus.New(storeOpts...)
	if err != nil {
		return nil, err
	}
	if e.repos != nil {
		if err := e.store.Load(ctx); err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		e.meta, err = e.repos.Metadata.LoadMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("load metadata: %w", err)
		}
		if e.meta != nil && e.store.Len() > 0 && e.meta.Dimension != e.store.Snapshot().Dim() {
			return nil, fmt.Errorf("%w: %w: metadata records %d, corpus has %d",
				core.ErrConsistency, core.ErrDimensionMismatch, e.meta.Dimension, e.store.Snapshot().Dim())
		}
	}

	if e.pipeline, err = e.newPipeline(options.logger); err != nil {
		return nil, err
	}
	if e.searcher, err = e.newSearcher(aiCfg, options.logger); err != nil {
		return nil, err
	}

	ok = true
	e.logger.Info("engine ready",
		"documents", e.store.Len(),
		"persistent", e.repos != nil,
		"rerank", e.provider.Reranker() != nil)
	return e, nil
}

func (e *Engine) newPipeline(logger *slog.Logger) (*ingestion.Pipeline, error) {
	cfg := e.cfg
	opts := []ingestion.Option{
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithRetryPolicy(cfg.RetryPolicy()),
		ingestion.WithNormalize(cfg.Ingestion.Normalize),
		ingestion.WithLogger(logger),
	}
	if cfg.Ingestion.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if cfg.Ingestion.Cache && e.repos != nil {
		opts = append(opts, ingestion.WithEmbeddingCache(e.repos.Cache, cfg.AI.EmbeddingModel))
	}
	return ingestion.NewPipeline(e.store, e.provider.Embedder(), opts...)
}

func (e *Engine) newSearcher(aiCfg *ai.Config, logger *slog.Logger) (*search.Searcher, error) {
	r := e.cfg.Retrieval
	opts := []search.Option{
		search.WithFusionK(r.FusionK),
		search.WithTopK(r.TopK),
		search.WithTopN(r.TopN),
		search.WithRerankCandidates(r.RerankCandidates),
		search.WithThreshold(r.Threshold),
		search.WithKeywordSignal(e.cfg.KeywordSignalEnabled()),
		search.WithNormalize(e.cfg.Ingestion.Normalize),
		search.WithGeneration(aiCfg.Temperature, aiCfg.MaxTokens),
		search.WithGenerateTimeout(aiCfg.GenerateTimeout),
		search.WithLogger(logger),
	}
	if g := e.provider.Generator(); g != nil {
		opts = append(opts, search.WithGenerator(g))
	}
	if rr := e.provider.Reranker(); rr != nil {
		adapter, err := rerank.New(rr, rerank.WithTimeout(aiCfg.RerankTimeout), rerank.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithReranker(adapter))
	}
	if r.Synonyms != "" {
		synonyms, err := text.LoadSynonyms(r.Synonyms)
		if err != nil {
			return nil, fmt.Errorf("load synonyms: %w", err)
		}
		opts = append(opts, search.WithExpander(text.NewSynonymExpander(synonyms, r.SynonymsPerWord)))
	}
	return search.NewSearcher(e.store, e.provider.Embedder(), opts...)
}

// checkModel fails when the persisted corpus was embedded with another model.
func (e *Engine) checkModel() error {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	if e.meta == nil || e.meta.EmbeddingModel == e.cfg.AI.EmbeddingModel {
		return nil
	}
	return fmt.Errorf("%w: %w: stored %q, configured %q",
		core.ErrConsistency, ErrModelMismatch, e.meta.EmbeddingModel, e.cfg.AI.EmbeddingModel)
}

// recordModel saves the corpus metadata once the first chunks are stored.
func (e *Engine) recordModel(ctx context.Context) error {
	if e.repos == nil {
		return nil
	}
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	if e.meta != nil {
		return nil
	}
	meta := &core.CorpusMeta{EmbeddingModel: e.cfg.AI.EmbeddingModel, Dimension: e.store.Snapshot().Dim()}
	if err := e.repos.Metadata.SaveMetadata(ctx, meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	e.meta = meta
	return nil
}

// NewRequest returns an ingestion request for text using the configured
// chunking defaults.
func (e *Engine) NewRequest(text string) ingestion.Request {
	return ingestion.Request{
		Text:         text,
		Mode:         e.cfg.Chunking.Mode,
		ChunkSize:    e.cfg.Chunking.Size,
		ChunkOverlap: e.cfg.Chunking.Overlap,
	}
}

// Ingest chunks, embeds and appends req.Text to the corpus.
func (e *Engine) Ingest(ctx context.Context, req ingestion.Request) (core.IngestResult, error) {
	if err := e.checkModel(); err != nil {
		return core.IngestResult{}, err
	}
	result, err := e.pipeline.Ingest(ctx, req)
	if err != nil {
		return result, err
	}
	if err := e.recordModel(context.WithoutCancel(ctx)); err != nil {
		return result, err
	}
	return result, nil
}

// Query answers query from the corpus.
func (e *Engine) Query(ctx context.Context, query string) (*search.QueryResult, error) {
	return e.QueryWithMonitor(ctx, query, nil)
}

// QueryWithMonitor is Query with a monitor receiving every pipeline step.
func (e *Engine) QueryWithMonitor(ctx context.Context, query string, monitor search.QueryMonitor) (*search.QueryResult, error) {
	if err := e.checkModel(); err != nil {
		return nil, err
	}
	return e.searcher.QueryWithMonitor(ctx, query, monitor)
}

// Documents lists every chunk text in ID order.
func (e *Engine) Documents() core.Documents {
	texts := e.store.Texts()
	return core.Documents{TotalDocs: len(texts), Documents: texts}
}

// Reembed recomputes every embedding with the configured embedder and
// records the configured model. Progress is written to progress.
func (e *Engine) Reembed(ctx context.Context, progress io.Writer) (*reembed.Result, error) {
	rcfg := reembed.DefaultConfig()
	rcfg.BatchSize = e.cfg.Ingestion.BatchSize
	rcfg.Retry = e.cfg.RetryPolicy()
	rcfg.Normalize = e.cfg.Ingestion.Normalize
	rcfg.Model = e.cfg.AI.EmbeddingModel

	opts := []reembed.Option{reembed.WithLogger(e.logger)}
	if e.repos != nil {
		opts = append(opts, reembed.WithRepository(e.repos.Chunks), reembed.WithMetadata(e.repos.Metadata))
	}
	r, err := reembed.NewReembedder(e.store, e.provider.Embedder(), rcfg, progress, opts...)
	if err != nil {
		return nil, err
	}

	result, err := r.Run(ctx)
	if err != nil {
		return nil, err
	}
	if e.repos != nil && result.Chunks > 0 {
		e.metaMu.Lock()
		e.meta = &core.CorpusMeta{EmbeddingModel: rcfg.Model, Dimension: result.Dimension}
		e.metaMu.Unlock()
	}
	return result, nil
}

// Close releases the worker pool, the AI provider and the storage.
func (e *Engine) Close() error {
	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
