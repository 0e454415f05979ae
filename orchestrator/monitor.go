package orchestrator

import (
	"github.com/poiesic/supportrag/assembly"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/generation"
	"github.com/poiesic/supportrag/retrieval"
)

// State is a step of query processing.
type State int

const (
	StateEmbedding State = iota + 1
	StateRetrieving
	StateAggregating
	StateAssembling
	StateGenerating
	StateScoring
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmbedding:
		return "embedding"
	case StateRetrieving:
		return "retrieving"
	case StateAggregating:
		return "aggregating"
	case StateAssembling:
		return "assembling"
	case StateGenerating:
		return "generating"
	case StateScoring:
		return "scoring"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Monitor provides hooks to observe query processing.
// Implement this interface to trace intermediate steps and results.
// Hooks run on the query's goroutine and must not block.
type Monitor interface {
	Start(query core.Query)
	Enter(state State)
	AfterEmbedding(dimension int)
	AfterRetrieval(outcomes map[core.SourceKind]retrieval.Outcome)
	AfterAggregation(aggregation retrieval.Aggregation)
	AfterAssembly(rc *assembly.RankedContext)
	AfterGeneration(result generation.Result, err error)
	Finish(answer *core.Answer)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Query)                                     {}
func (n *noopMonitor) Enter(_ State)                                          {}
func (n *noopMonitor) AfterEmbedding(_ int)                                   {}
func (n *noopMonitor) AfterRetrieval(_ map[core.SourceKind]retrieval.Outcome) {}
func (n *noopMonitor) AfterAggregation(_ retrieval.Aggregation)               {}
func (n *noopMonitor) AfterAssembly(_ *assembly.RankedContext)                {}
func (n *noopMonitor) AfterGeneration(_ generation.Result, _ error)           {}
func (n *noopMonitor) Finish(_ *core.Answer)                                  {}
