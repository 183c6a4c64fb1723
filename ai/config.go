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


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GeneratorHost is the base URL for the answer generation service API.
	// Example: "http://localhost:8000/v1" for a vLLM server
	GeneratorHost string

	// RerankHost is the base URL of a cross-encoder rerank service.
	// Empty disables reranking.
	RerankHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "paraphrase-multilingual-MiniLM-L12-v2"
	EmbeddingModel string

	// GeneratorModel is the model identifier to use for answer generation.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	GeneratorModel string

	// RerankModel is the model identifier passed to the rerank service.
	RerankModel string

	// APIKey is sent as the bearer token. Local services accept "none".
	APIKey string

	// Temperature is the sampling temperature for generation.
	// Default: 0.7
	Temperature float64

	// MaxTokens bounds the generated answer length.
	// Default: 512
	MaxTokens int

	// GenerateTimeout bounds a single generation call. Zero means no bound.
	GenerateTimeout time.Duration

	// RerankTimeout bounds a single rerank call. Zero means no bound.
	RerankTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGeneratorHost sets the generation service host URL.
func WithGeneratorHost(host string) ConfigOption {
	return func(c *Config) {
		c.GeneratorHost = host
	}
}

// WithHost sets both embedding and generator hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GeneratorHost = host
	}
}

// WithRerankHost sets the rerank service host URL.
func WithRerankHost(host string) ConfigOption {
	return func(c *Config) {
		c.RerankHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGeneratorModel sets the generation model identifier.
func WithGeneratorModel(model string) ConfigOption {
	return func(c *Config) {
		c.GeneratorModel = model
	}
}

// WithRerankModel sets the rerank model identifier.
func WithRerankModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankModel = model
	}
}

// WithAPIKey sets the bearer token sent to all services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithGeneration sets the sampling temperature and token budget.
func WithGeneration(temperature float64, maxTokens int) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
		c.MaxTokens = maxTokens
	}
}

// WithTimeouts sets the generation and rerank call timeouts.
func WithTimeouts(generate, rerank time.Duration) ConfigOption {
	return func(c *Config) {
		c.GenerateTimeout = generate
		c.RerankTimeout = rerank
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, embedding and generation use the same host and reranking is disabled.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		GeneratorHost:   defaultHost,
		EmbeddingModel:  "embeddinggemma",
		GeneratorModel:  "qwen2.5:3b",
		APIKey:          "none",
		Temperature:     0.7,
		MaxTokens:       512,
		GenerateTimeout: 60 * time.Second,
		RerankTimeout:   10 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	    WithRerankHost("http://localhost:8080"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// RerankEnabled reports whether a rerank service is configured.
func (c *Config) RerankEnabled() bool {
	return c.RerankHost != ""
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the OpenAI-compatible hosts if missing and
// strips a trailing slash from the rerank host.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.GeneratorHost = withV1(c.GeneratorHost)
	c.RerankHost = strings.TrimSuffix(c.RerankHost, "/")
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GeneratorHost == "" {
		return errors.New("ai config: GeneratorHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GeneratorModel == "" {
		return errors.New("ai config: GeneratorModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.GenerateTimeout < 0 || c.RerankTimeout < 0 {
		return errors.New("ai config: timeouts cannot be negative")
	}
	return nil
}
