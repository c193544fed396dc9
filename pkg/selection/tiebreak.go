package selection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Policy names a tie-break rule.
type Policy string

const (
	// PolicyRecency prefers the later-generated candidate. On equal
	// timestamps the lower-ranked of the two wins.
	PolicyRecency Policy = "recency"
	// PolicyStableFirst prefers the candidate whose strategy was invoked
	// first.
	PolicyStableFirst Policy = "stable-first"
	// PolicyMetadata prefers the larger value of a metadata field.
	PolicyMetadata Policy = "metadata"
)

// ParsePolicy converts a configuration string into a Policy. Empty means
// stable-first.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyStableFirst, nil
	case PolicyRecency, PolicyStableFirst, PolicyMetadata:
		return p, nil
	}
	return "", fmt.Errorf("unknown tie-break policy %q (want recency, stable-first or metadata)", s)
}

// TieBreaker resolves near-equal leaders. It is a pure function of its
// configuration and the two candidates.
type TieBreaker struct {
	Policy        Policy
	Margin        int    // scores differing by more than this are not tied
	MetadataField string // used by PolicyMetadata
}

// Decision is the outcome of a tie-break check.
type Decision struct {
	Applied      bool
	Candidates   [2]string
	Scores       [2]int
	Margin       int
	Policy       Policy
	StrategyUsed Policy // differs from Policy when metadata fell back to recency
	Winner       string
}

// Record converts an applied decision into the result provenance record.
func (d Decision) Record() *sampling.TieBreakRecord {
	if !d.Applied {
		return nil
	}
	return &sampling.TieBreakRecord{
		Candidates: d.Candidates,
		Scores:     d.Scores,
		Margin:     d.Margin,
		Policy:     string(d.Policy),
		Strategy:   string(d.StrategyUsed),
		Winner:     d.Winner,
	}
}

// Break decides between first and second, where first is the higher-ranked
// candidate. When their totals differ by more than the margin, first wins
// and the decision is not applied.
func (tb TieBreaker) Break(first, second sampling.ScoredCandidate) (sampling.ScoredCandidate, Decision) {
	policy := tb.Policy
	if policy == "" {
		policy = PolicyStableFirst
	}
	d := Decision{
		Candidates: [2]string{first.ID, second.ID},
		Scores:     [2]int{first.Score.Total, second.Score.Total},
		Margin:     tb.Margin,
		Policy:     policy,
		Winner:     first.ID,
	}
	diff := first.Score.Total - second.Score.Total
	if diff < 0 {
		diff = -diff
	}
	if diff > tb.Margin {
		return first, d
	}

	d.Applied = true
	d.StrategyUsed = policy
	secondWins := false
	switch policy {
	case PolicyStableFirst:
		secondWins = second.Ordinal < first.Ordinal
	case PolicyRecency:
		secondWins = !second.GeneratedAt.Before(first.GeneratedAt)
	case PolicyMetadata:
		cmp, ok := compareValues(first.Metadata[tb.MetadataField], second.Metadata[tb.MetadataField])
		if ok && cmp != 0 {
			secondWins = cmp < 0
		} else {
			d.StrategyUsed = PolicyRecency
			secondWins = !second.GeneratedAt.Before(first.GeneratedAt)
		}
	}
	if secondWins {
		d.Winner = second.ID
		return second, d
	}
	return first, d
}

// compareValues orders two metadata values. Numbers compare numerically and
// strings lexically; anything else, or a mix, is incomparable.
func compareValues(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
