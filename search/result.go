package search

import (
	"github.com/poiesic/ragfuse/core"
)

// Signal names a ranking signal or optional pipeline stage.
type Signal string

const (
	SignalLexical    Signal = "lexical"
	SignalVector     Signal = "vector"
	SignalKeyword    Signal = "keyword"
	SignalRerank     Signal = "rerank"
	SignalGeneration Signal = "generation"
)

// PlaceholderAnswer replaces the answer when generation is unavailable.
const PlaceholderAnswer = "answer generation unavailable"

// Answer is either a generated answer or a degraded placeholder.
type Answer struct {
	Text string
	// Degraded is set when Text is PlaceholderAnswer.
	Degraded bool
	// Reason describes why generation was unavailable.
	Reason string
}

// MarshalText encodes the answer as its text so results serialize with a
// plain answer string. The degradation reason is reported in Signals.
func (a Answer) MarshalText() ([]byte, error) {
	return []byte(a.Text), nil
}

func generated(text string) Answer {
	return Answer{Text: text}
}

func degraded(reason string) Answer {
	return Answer{Text: PlaceholderAnswer, Degraded: true, Reason: reason}
}

// Signals records which ranking signals and stages contributed to a result.
type Signals struct {
	// Used lists the ranking signals fused, in fusion order.
	Used []Signal `json:"used"`
	// Skipped maps signals and stages that did not contribute to the reason.
	Skipped map[Signal]string `json:"skipped,omitempty"`
	// Reranked is set when the final order comes from reranker scores.
	Reranked bool `json:"reranked"`
}

func (s *Signals) skip(signal Signal, reason string) {
	if s.Skipped == nil {
		s.Skipped = make(map[Signal]string)
	}
	s.Skipped[signal] = reason
}

// QueryResult is the outcome of a successful query.
type QueryResult struct {
	RequestID     string                   `json:"request_id"`
	Query         string                   `json:"query"`
	Answer        Answer                   `json:"answer"`
	RetrievedDocs []core.RetrievedDocument `json:"retrieved_docs"`
	Signals       Signals                  `json:"signals"`
}
