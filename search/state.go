package search

import "fmt"

// State is a stage of the query pipeline.
type State int

const (
	StateReceived State = iota
	StateExpanded
	StateRanked
	StateFused
	StateDeduplicated
	StateReranked
	StateAssembled
	StateDone
	StateError
)

var stateNames = [...]string{
	StateReceived:     "received",
	StateExpanded:     "expanded",
	StateRanked:       "ranked",
	StateFused:        "fused",
	StateDeduplicated: "deduplicated",
	StateReranked:     "reranked",
	StateAssembled:    "assembled",
	StateDone:         "done",
	StateError:        "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// CanTransition reports whether the pipeline may move from one state to
// another. States advance one step at a time, except that reranking may be
// skipped and any non-terminal state may fail.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch {
	case to == StateError:
		return true
	case to == from+1:
		return true
	case from == StateDeduplicated && to == StateAssembled:
		return true
	}
	return false
}
