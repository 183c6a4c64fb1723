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


// Package ai provides abstractions for the external AI services used by ragfuse.
//
// The engine consumes three collaborators, each behind an interface:
//
//   - Embedder: maps text to fixed-dimension vectors
//   - Generator: turns a prompt into an answer
//   - Reranker: scores candidate passages against a query with a cross-encoder
//
// AIProvider aggregates them for convenient initialization. Reranker is
// optional and a provider may return nil for it.
//
// # Implementation Packages
//
//   - ai/openai: embedder and generator over OpenAI-compatible APIs (Ollama, vLLM, LocalAI)
//   - ai/rerankapi: HTTP client for /rerank endpoints (TEI, Infinity, Jina, Cohere style)
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockReranker) return CONCRETE types so tests can inject behavior
// and assert call counts.
//
// # Retries
//
// Retry runs a collaborator call under a RetryPolicy with exponential
// backoff. Ingestion retries embedding calls; rerank and generation calls
// are never retried, a failure there selects the fallback path instead.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"hello", "world"})
//	answer, err := provider.Generator().Generate(ctx, prompt, ai.GenerateOptions{Temperature: 0.7, MaxTokens: 512})
package ai
