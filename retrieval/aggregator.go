package retrieval

import (
	"slices"

	"github.com/poiesic/supportrag/core"
)

// Weights maps each source kind to its priority weight.
type Weights map[core.SourceKind]float32

// Aggregation is the merged, ranked result of one retrieval fan-out.
type Aggregation struct {
	// Candidates is ordered by normalized score descending, then weight
	// descending, then source ID ascending, then source kind.
	Candidates []core.Candidate
	// NoCandidates is set when no source produced a candidate, whether
	// because sources were empty or because they all failed.
	NoCandidates bool
	// Failed lists the sources that were unavailable, in kind order.
	Failed []core.SourceKind
}

// Aggregate merges per-source outcomes into one ranked list. Each candidate's
// Weight is set from weights; kinds without a weight get 0. Failed sources
// contribute no candidates. Aggregate is a pure function of its inputs.
func Aggregate(outcomes map[core.SourceKind]Outcome, weights Weights) Aggregation {
	var agg Aggregation

	kinds := make([]core.SourceKind, 0, len(outcomes))
	for kind := range outcomes {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	merged := []core.Candidate{}
	for _, kind := range kinds {
		outcome := outcomes[kind]
		if outcome.Err != nil {
			agg.Failed = append(agg.Failed, kind)
			continue
		}
		for _, c := range outcome.Candidates {
			c.Kind = kind
			c.Weight = weights[kind]
			merged = append(merged, c)
		}
	}

	slices.SortStableFunc(merged, compareCandidates)

	agg.Candidates = merged
	agg.NoCandidates = len(merged) == 0
	return agg
}

// compareCandidates orders by normalized score desc, weight desc, source id
// asc, kind asc.
func compareCandidates(a, b core.Candidate) int {
	sa, sb := a.NormalizedScore(), b.NormalizedScore()
	switch {
	case sa > sb:
		return -1
	case sa < sb:
		return 1
	case a.Weight > b.Weight:
		return -1
	case a.Weight < b.Weight:
		return 1
	case a.SourceId < b.SourceId:
		return -1
	case a.SourceId > b.SourceId:
		return 1
	case a.Kind < b.Kind:
		return -1
	case a.Kind > b.Kind:
		return 1
	}
	return 0
}
