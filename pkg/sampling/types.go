// Package sampling defines the scored output of a sampling run: per-criterion
// breakdowns, ranked candidates, selection constraints and the SamplingResult
// that is cached and returned to callers.
package sampling

import (
	"errors"
	"sort"
	"time"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// Criterion is one weighted rubric entry.
type Criterion struct {
	Weight   float64 `json:"weight" yaml:"weight"`                 // 0..1
	MinScore int     `json:"min_score,omitempty" yaml:"min_score"` // 0 disables the floor
}

// Criteria maps criterion names ("security", "accuracy", ...) to weights.
// Weights need not sum to 1.
type Criteria map[string]Criterion

// Names returns the criterion names in sorted order.
func (c Criteria) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (c Criteria) Clone() Criteria {
	out := make(Criteria, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Breakdown is the explainable score of one candidate.
// Derived on every scoring run; never persisted apart from its candidate.
type Breakdown struct {
	Total           int            `json:"total"` // 0..100
	PerCriterion    map[string]int `json:"per_criterion"`
	Strengths       []string       `json:"strengths,omitempty"`
	Weaknesses      []string       `json:"weaknesses,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// ScoredCandidate is a candidate together with its score and 1-based rank.
type ScoredCandidate struct {
	artifact.Candidate
	Score Breakdown `json:"score"`
	Rank  int       `json:"rank"`
}

// Constraints are post-scoring filters applied at selection time only.
type Constraints struct {
	MinScore          int      `json:"min_score,omitempty" yaml:"min_score"`
	MustInclude       []string `json:"must_include,omitempty" yaml:"must_include"`
	MustNotInclude    []string `json:"must_not_include,omitempty" yaml:"must_not_include"`
	PreferredStrategy string   `json:"preferred_strategy,omitempty" yaml:"preferred_strategy"`
}

// IsZero reports whether no constraint is set.
func (c Constraints) IsZero() bool {
	return c.MinScore == 0 && len(c.MustInclude) == 0 && len(c.MustNotInclude) == 0 && c.PreferredStrategy == ""
}

// TieBreakRecord is the provenance of a tie-break decision.
type TieBreakRecord struct {
	Candidates [2]string `json:"candidates"`
	Scores     [2]int    `json:"scores"`
	Margin     int       `json:"margin"`
	Policy     string    `json:"policy"`
	Strategy   string    `json:"strategy_used"` // policy actually applied after fallbacks
	Winner     string    `json:"winner"`
}

// Metadata is the provenance block of a SamplingResult.
type Metadata struct {
	TotalCandidates      int             `json:"total_candidates"`
	StrategiesUsed       []string        `json:"strategies_used"`
	StrategiesFailed     []string        `json:"strategies_failed,omitempty"`
	GenerationDurationMs int64           `json:"generation_duration_ms"`
	ScoringDurationMs    int64           `json:"scoring_duration_ms"`
	GeneratedAt          time.Time       `json:"generated_at"`
	TimedOut             bool            `json:"timed_out,omitempty"`
	FromCache            bool            `json:"from_cache,omitempty"`
	ConstraintFallback   bool            `json:"constraint_fallback,omitempty"`
	TieBreak             *TieBreakRecord `json:"tie_break,omitempty"`
}

// Result is the unit cached and returned to callers.
type Result struct {
	Kind       artifact.Kind     `json:"kind"`
	SessionID  string            `json:"session_id,omitempty"`
	Candidates []ScoredCandidate `json:"candidates"` // sorted by descending total
	Best       ScoredCandidate   `json:"best"`
	Criteria   Criteria          `json:"criteria"`
	Metadata   Metadata          `json:"metadata"`
}

// NewResult assembles a Result, enforcing that the candidate list is
// non-empty, sorted by descending total with strictly increasing rank and
// that best is one of its members.
func NewResult(kind artifact.Kind, sessionID string, candidates []ScoredCandidate, best ScoredCandidate, criteria Criteria, meta Metadata) (*Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoSuitableCandidate
	}
	member := false
	for i, c := range candidates {
		if i > 0 {
			prev := candidates[i-1]
			if c.Score.Total > prev.Score.Total {
				return nil, errors.New("candidates are not sorted by descending score")
			}
			if c.Rank <= prev.Rank {
				return nil, errors.New("candidate ranks are not strictly increasing")
			}
		}
		if c.ID == best.ID {
			member = true
		}
	}
	if !member {
		return nil, errors.New("best candidate is not a member of the candidate list")
	}
	meta.TotalCandidates = len(candidates)
	return &Result{
		Kind:       kind,
		SessionID:  sessionID,
		Candidates: candidates,
		Best:       best,
		Criteria:   criteria,
		Metadata:   meta,
	}, nil
}

// SortAndRank orders candidates by descending total, breaking equal totals
// by invocation ordinal, and assigns 1-based ranks in place.
func SortAndRank(list []ScoredCandidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score.Total != list[j].Score.Total {
			return list[i].Score.Total > list[j].Score.Total
		}
		return list[i].Ordinal < list[j].Ordinal
	})
	for i := range list {
		list[i].Rank = i + 1
	}
}
