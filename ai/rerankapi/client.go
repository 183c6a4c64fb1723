// Package rerankapi provides an ai.Reranker backed by an HTTP /rerank endpoint.
//
// The request and response shapes follow the format shared by Text
// Embeddings Inference, Infinity, Jina and Cohere compatible servers:
//
//	POST {host}/rerank
//	{"model": "...", "query": "...", "documents": ["..."], "top_n": 5}
//
//	{"results": [{"index": 0, "relevance_score": 0.93}]}
package rerankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/ragfuse/ai"
)

var _ ai.Reranker = (*Client)(nil)

// ErrHostRequired is returned when New is called without a host.
var ErrHostRequired = errors.New("rerank host is required")

// Option configures a Client.
type Option func(*Client) error

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(c *Client) error {
		c.model = model
		return nil
	}
}

// WithAPIKey sets the bearer token. "none" and empty disable the header.
func WithAPIKey(key string) Option {
	return func(c *Client) error {
		c.apiKey = key
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		c.http = hc
		return nil
	}
}

// Client calls a remote rerank service.
type Client struct {
	http     *http.Client
	endpoint string
	model    string
	apiKey   string
	logger   *slog.Logger
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// New creates a client for the rerank service at host.
// Request timeouts come from the caller's context.
func New(host string, opts ...Option) (*Client, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, ErrHostRequired
	}
	c := &Client{
		http:     &http.Client{},
		endpoint: host + "/rerank",
		logger:   slog.Default().With("component", "rerank-client"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Rerank scores documents against query. The returned results are in the
// order the service produced them.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ai.RerankResult, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" && c.apiKey != "none" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending rerank request", "documents", len(documents), "topN", topN)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return nil, fmt.Errorf("rerank error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("rerank error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]ai.RerankResult, len(decoded.Results))
	for i, r := range decoded.Results {
		results[i] = ai.RerankResult{Index: r.Index, Score: r.RelevanceScore}
	}
	return results, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
