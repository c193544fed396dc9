package selection

import (
	"fmt"

	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Selection is the outcome of Select.
type Selection struct {
	Best sampling.ScoredCandidate
	// Eligible is the constraint-filtered ranked list the winner came from.
	Eligible []sampling.ScoredCandidate
	// Fallback is set when constraints eliminated every candidate and the
	// overall best was chosen instead.
	Fallback bool
	Decision Decision
	Warnings []string
}

// Select filters the ranked list by constraints and picks the winner,
// tie-breaking between the top two eligible candidates. If the constraints
// leave nothing, the best-scoring candidate of the unfiltered list is
// chosen and a warning is recorded. Select fails only on an empty list.
func Select(ranked []sampling.ScoredCandidate, c sampling.Constraints, tb TieBreaker) (Selection, error) {
	if len(ranked) == 0 {
		return Selection{}, sampling.ErrNoSuitableCandidate
	}
	list := make([]sampling.ScoredCandidate, len(ranked))
	copy(list, ranked)
	sampling.SortAndRank(list)

	var sel Selection
	eligible := Filter(list, c)
	if len(eligible) == 0 {
		sel.Fallback = true
		sel.Warnings = append(sel.Warnings, fmt.Sprintf(
			"constraints unsatisfiable (%s); falling back to best candidate %s", Describe(c), list[0].ID))
		eligible = list[:1]
	}
	sel.Eligible = eligible
	sel.Best = eligible[0]

	if len(eligible) >= 2 {
		sel.Best, sel.Decision = tb.Break(eligible[0], eligible[1])
	} else {
		sel.Decision = Decision{
			Candidates: [2]string{eligible[0].ID, ""},
			Scores:     [2]int{eligible[0].Score.Total, 0},
			Margin:     tb.Margin,
			Policy:     tb.Policy,
			Winner:     eligible[0].ID,
		}
	}
	return sel, nil
}
