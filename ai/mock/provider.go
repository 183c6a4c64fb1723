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


package mock

import "github.com/poiesic/ragfuse/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder, generator and reranker instances.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockGenerator
	reranker  *MockReranker
}

// NewMockProvider creates a new mock provider with default mock services.
// The default provider has no reranker.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockGenerator() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		generator: NewMockGenerator("mock answer"),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// reranker may be nil to model a deployment without a rerank service.
func NewMockProviderWithServices(embedder *MockEmbedder, generator *MockGenerator, reranker *MockReranker) ai.AIProvider {
	return &MockProvider{
		embedder:  embedder,
		generator: generator,
		reranker:  reranker,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the mock generator.
func (p *MockProvider) Generator() ai.Generator {
	if p.generator == nil {
		return nil
	}
	return p.generator
}

// Reranker returns the mock reranker, or nil when none was configured.
func (p *MockProvider) Reranker() ai.Reranker {
	if p.reranker == nil {
		return nil
	}
	return p.reranker
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockGenerator returns the underlying mock generator for test assertions.
func (p *MockProvider) GetMockGenerator() *MockGenerator {
	return p.generator
}

// GetMockReranker returns the underlying mock reranker, possibly nil.
func (p *MockProvider) GetMockReranker() *MockReranker {
	return p.reranker
}
