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


// Package config loads engine configuration from YAML, .env files and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, RAGFUSE_*
// environment variables. Variables from .env files are loaded into the
// process environment first and never override variables already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/chunker"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGFUSE_"

// AIConfig configures the embedding, generation and rerank services.
type AIConfig struct {
	EmbeddingHost  string `yaml:"embedding_host"`
	GeneratorHost  string `yaml:"generator_host"`
	RerankHost     string `yaml:"rerank_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	GeneratorModel string `yaml:"generator_model"`
	RerankModel    string `yaml:"rerank_model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv           string  `yaml:"api_key_env"`
	Temperature         float64 `yaml:"temperature"`
	MaxTokens           int     `yaml:"max_tokens"`
	GenerateTimeoutSecs int     `yaml:"generate_timeout_secs"`
	RerankTimeoutSecs   int     `yaml:"rerank_timeout_secs"`
}

// ChunkingConfig holds the default chunking parameters for ingestion.
type ChunkingConfig struct {
	Mode    string `yaml:"mode"`
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
}

// RetrievalConfig configures the query pipeline.
type RetrievalConfig struct {
	FusionK          float64 `yaml:"fusion_k"`
	TopK             int     `yaml:"top_k"`
	TopN             int     `yaml:"top_n"`
	RerankCandidates int     `yaml:"rerank_candidates"`
	// Threshold is the minimum vector similarity; 0 disables the filter.
	Threshold     float64 `yaml:"threshold"`
	KeywordSignal *bool   `yaml:"keyword_signal,omitempty"`
	// Synonyms is the path of a synonym dictionary. Empty disables expansion.
	Synonyms        string `yaml:"synonyms"`
	SynonymsPerWord int    `yaml:"synonyms_per_word"`
}

// IngestionConfig configures embedding during ingestion.
type IngestionConfig struct {
	BatchSize    int  `yaml:"batch_size"`
	PoolSize     int  `yaml:"pool_size"`
	Normalize    bool `yaml:"normalize"`
	Cache        bool `yaml:"cache"`
	MaxAttempts  int  `yaml:"max_attempts"`
	RetryDelayMs int  `yaml:"retry_delay_ms"`
}

// StorageConfig selects where the corpus is persisted.
type StorageConfig struct {
	// Path is the badger directory. Empty keeps the corpus in memory.
	Path string `yaml:"path"`
}

// Config is the root configuration structure.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	AI        AIConfig        `yaml:"ai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Storage   StorageConfig   `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() *Config {
	keyword := true
	a := ai.DefaultConfig()
	return &Config{
		LogLevel: "info",
		AI: AIConfig{
			EmbeddingHost:       a.EmbeddingHost,
			GeneratorHost:       a.GeneratorHost,
			EmbeddingModel:      a.EmbeddingModel,
			GeneratorModel:      a.GeneratorModel,
			APIKeyEnv:           EnvPrefix + "API_KEY",
			Temperature:         a.Temperature,
			MaxTokens:           a.MaxTokens,
			GenerateTimeoutSecs: int(a.GenerateTimeout / time.Second),
			RerankTimeoutSecs:   int(a.RerankTimeout / time.Second),
		},
		Chunking: ChunkingConfig{Mode: string(chunker.ModeFixed), Size: 512, Overlap: 50},
		Retrieval: RetrievalConfig{
			FusionK:          60,
			TopK:             10,
			TopN:             5,
			RerankCandidates: 10,
			KeywordSignal:    &keyword,
			SynonymsPerWord:  2,
		},
		Ingestion: IngestionConfig{
			BatchSize:    32,
			Cache:        true,
			MaxAttempts:  3,
			RetryDelayMs: 1000,
		},
		Storage: StorageConfig{Path: "./ragfuse_db"},
	}
}

// Load reads a config from path and applies environment overrides.
// If the file does not exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	// Fields absent from the file keep their defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads .env files into the process environment. Missing
// files are skipped. Without arguments ".env" is loaded.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes cfg to path as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"LOG_LEVEL":       &cfg.LogLevel,
		"EMBEDDING_HOST":  &cfg.AI.EmbeddingHost,
		"GENERATOR_HOST":  &cfg.AI.GeneratorHost,
		"RERANK_HOST":     &cfg.AI.RerankHost,
		"EMBEDDING_MODEL": &cfg.AI.EmbeddingModel,
		"GENERATOR_MODEL": &cfg.AI.GeneratorModel,
		"RERANK_MODEL":    &cfg.AI.RerankModel,
		"STORAGE_PATH":    &cfg.Storage.Path,
		"SYNONYMS":        &cfg.Retrieval.Synonyms,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TOP_K":      &cfg.Retrieval.TopK,
		"TOP_N":      &cfg.Retrieval.TopN,
		"MAX_TOKENS": &cfg.AI.MaxTokens,
		"BATCH_SIZE": &cfg.Ingestion.BatchSize,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"FUSION_K":    &cfg.Retrieval.FusionK,
		"THRESHOLD":   &cfg.Retrieval.Threshold,
		"TEMPERATURE": &cfg.AI.Temperature,
	}
	for name, dst := range floats {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
	}
	return nil
}

// KeywordSignalEnabled reports whether keyword-overlap ranking is on.
// It defaults to true when unset.
func (c *Config) KeywordSignalEnabled() bool {
	return c.Retrieval.KeywordSignal == nil || *c.Retrieval.KeywordSignal
}

// RetryPolicy returns the embedding retry policy.
func (c *Config) RetryPolicy() ai.RetryPolicy {
	return ai.RetryPolicy{
		MaxAttempts: c.Ingestion.MaxAttempts,
		BaseDelay:   time.Duration(c.Ingestion.RetryDelayMs) * time.Millisecond,
	}
}

// ToAIConfig converts the AI section into a normalized ai.Config. The API
// key is read from the variable named by APIKeyEnv.
func (c *Config) ToAIConfig() (*ai.Config, error) {
	apiKey := ""
	if c.AI.APIKeyEnv != "" {
		apiKey = os.Getenv(c.AI.APIKeyEnv)
	}
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithRerankHost(c.AI.RerankHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithRerankModel(c.AI.RerankModel),
		ai.WithAPIKey(apiKey),
		ai.WithGeneration(c.AI.Temperature, c.AI.MaxTokens),
		ai.WithTimeouts(
			time.Duration(c.AI.GenerateTimeoutSecs)*time.Second,
			time.Duration(c.AI.RerankTimeoutSecs)*time.Second,
		),
	)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the non-AI sections. The AI section is checked by
// ToAIConfig.
func (c *Config) Validate() error {
	if _, err := chunker.ParseMode(c.Chunking.Mode); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return errors.New("chunking: size must be positive and overlap must be in [0, size)")
	}
	if c.Retrieval.FusionK <= 0 {
		return errors.New("retrieval: fusion_k must be positive")
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopN <= 0 || c.Retrieval.RerankCandidates <= 0 {
		return errors.New("retrieval: top_k, top_n and rerank_candidates must be positive")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return errors.New("retrieval: threshold must be in [0, 1]")
	}
	if c.Ingestion.BatchSize <= 0 {
		return errors.New("ingestion: batch_size must be positive")
	}
	if c.Ingestion.PoolSize < 0 {
		return errors.New("ingestion: pool_size cannot be negative")
	}
	if c.Ingestion.MaxAttempts <= 0 {
		return errors.New("ingestion: max_attempts must be positive")
	}
	return nil
}
