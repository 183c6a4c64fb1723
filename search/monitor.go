package search

import (
	"log/slog"

	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/rerank"
)

// QueryMonitor provides hooks to observe the query pipeline.
// Implement this interface to track intermediate steps and results of a query.
// Hooks are called from the goroutine running the query, never concurrently.
type QueryMonitor interface {
	Start(requestID, query string)
	Transition(from, to State)
	AfterExpansion(expanded string)
	AfterRanking(lists map[Signal]core.RankedList)
	AfterFusion(fused []core.FusionResult)
	AfterRerank(outcome rerank.Outcome)
	Finish(result *QueryResult)
	Fail(state State, err error)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                          {}
func (n *noopMonitor) Transition(_, _ State)                      {}
func (n *noopMonitor) AfterExpansion(_ string)                    {}
func (n *noopMonitor) AfterRanking(_ map[Signal]core.RankedList) {}
func (n *noopMonitor) AfterFusion(_ []core.FusionResult)          {}
func (n *noopMonitor) AfterRerank(_ rerank.Outcome)               {}
func (n *noopMonitor) Finish(_ *QueryResult)                      {}
func (n *noopMonitor) Fail(_ State, _ error)                      {}

// LogMonitor traces every pipeline step to a logger at info level.
type LogMonitor struct {
	logger *slog.Logger
}

var _ QueryMonitor = (*LogMonitor)(nil)

// NewLogMonitor creates a LogMonitor. A nil logger selects slog.Default().
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger.With("component", "trace")}
}

func (m *LogMonitor) Start(requestID, query string) {
	m.logger = m.logger.With("requestID", requestID)
	m.logger.Info("query received", "query", query)
}

func (m *LogMonitor) Transition(from, to State) {
	m.logger.Info("state", "from", from, "to", to)
}

func (m *LogMonitor) AfterExpansion(expanded string) {
	m.logger.Info("query expanded", "expanded", expanded)
}

func (m *LogMonitor) AfterRanking(lists map[Signal]core.RankedList) {
	for signal, list := range lists {
		m.logger.Info("ranked", "signal", signal, "ids", list.IDs())
	}
}

func (m *LogMonitor) AfterFusion(fused []core.FusionResult) {
	ids := make([]core.ID, len(fused))
	for i, r := range fused {
		ids[i] = r.DocID
	}
	m.logger.Info("fused", "ids", ids)
}

func (m *LogMonitor) AfterRerank(outcome rerank.Outcome) {
	m.logger.Info("reranked",
		"documents", len(outcome.Documents),
		"fellBack", outcome.FellBack,
		"reason", outcome.Reason,
		"padded", outcome.Padded)
}

func (m *LogMonitor) Finish(result *QueryResult) {
	m.logger.Info("query done",
		"documents", len(result.RetrievedDocs),
		"degraded", result.Answer.Degraded)
}

func (m *LogMonitor) Fail(state State, err error) {
	m.logger.Info("query failed", "state", state, "class", core.Classify(err), "err", err)
}
