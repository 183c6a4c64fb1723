package ai

// GenerateOptions controls a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// RerankResult is one relevance score returned by a Reranker.
type RerankResult struct {
	// Index is the position of the scored document in the request.
	Index int
	// Score is the relevance score; higher is more relevant.
	Score float64
}
