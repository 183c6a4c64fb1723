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


package openai

import (
	"log/slog"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/ai/rerankapi"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and generator instances, plus a rerank client when
// a rerank host is configured.
type Provider struct {
	config    *ai.Config
	embedder  *Embedder
	generator *Generator
	reranker  *rerankapi.Client
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerator(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:    config,
		embedder:  embedder,
		generator: generator,
		logger:    slog.Default().With("component", "openai-provider"),
	}

	if config.RerankEnabled() {
		p.reranker, err = rerankapi.New(config.RerankHost,
			rerankapi.WithModel(config.RerankModel),
			rerankapi.WithAPIKey(config.APIKey),
		)
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the answer generation service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Reranker returns the rerank service, or nil when no rerank host is configured.
func (p *Provider) Reranker() ai.Reranker {
	if p.reranker == nil {
		return nil
	}
	return p.reranker
}

// Close releases resources held by the provider.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	if p.reranker != nil {
		p.reranker.Close()
	}
	return nil
}
