package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// maxRationale caps strengths, weaknesses and recommendations per candidate.
const maxRationale = 3

// Engine runs the configured analyzers against candidates and produces
// weighted composite scores.
type Engine struct {
	analyzers map[artifact.Kind][]Analyzer
	logger    *zap.Logger
	earlyStop int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for dropped candidates.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEarlyStop makes ScoreAll keep only the leader when the top-ranked
// total reaches threshold. Every candidate is still scored, so the leader
// is chosen by rank. Zero disables it.
func WithEarlyStop(threshold int) Option {
	return func(e *Engine) { e.earlyStop = threshold }
}

// WithAnalyzers replaces the analyzer set for kind.
func WithAnalyzers(kind artifact.Kind, analyzers ...Analyzer) Option {
	return func(e *Engine) { e.analyzers[kind] = analyzers }
}

// NewEngine creates a scoring engine with the default analyzers for every
// artifact kind.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		analyzers: make(map[artifact.Kind][]Analyzer),
		logger:    zap.NewNop(),
	}
	for _, k := range artifact.Kinds() {
		e.analyzers[k] = DefaultAnalyzers(k)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Report is the output of scoring a candidate set.
type Report struct {
	// Scored is sorted by descending total, ties by ordinal, ranked from 1.
	Scored []sampling.ScoredCandidate
	// Dropped maps candidate IDs to the analyzer failure that removed them.
	Dropped map[string]error
	// Stopped is set when early stop cut the ranking after the leader.
	// Skipped counts the ranked candidates it removed.
	Stopped bool
	Skipped int
}

// applied returns the analyzers for kind that have a matching criterion,
// ordered by criterion name.
func (e *Engine) applied(kind artifact.Kind, criteria sampling.Criteria) []Analyzer {
	byName := make(map[string]Analyzer)
	for _, a := range e.analyzers[kind] {
		byName[a.Criterion()] = a
	}
	var out []Analyzer
	for _, name := range criteria.Names() {
		if a, ok := byName[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Score computes the breakdown of one candidate. An analyzer error is
// returned as a *sampling.ScoringError.
func (e *Engine) Score(c artifact.Candidate, gctx artifact.Context, criteria sampling.Criteria) (sampling.Breakdown, error) {
	analyzers := e.applied(c.Kind, criteria)
	if len(analyzers) == 0 {
		return sampling.Breakdown{}, fmt.Errorf("no analyzers match the criteria for %s", c.Kind)
	}

	bd := sampling.Breakdown{PerCriterion: make(map[string]int, len(analyzers))}
	var floors, strengths, weaknesses, recs []string
	var weighted, weightSum, plain float64

	for _, a := range analyzers {
		name := a.Criterion()
		as, err := a.Analyze(c, gctx)
		if err != nil {
			return sampling.Breakdown{}, &sampling.ScoringError{CandidateID: c.ID, Criterion: name, Err: err}
		}
		score := clamp(as.Score)
		bd.PerCriterion[name] = score

		cr := criteria[name]
		weighted += float64(score) * cr.Weight
		weightSum += cr.Weight
		plain += float64(score)

		if cr.MinScore > 0 && score < cr.MinScore {
			floors = append(floors, fmt.Sprintf("%s score %d is below the minimum of %d", name, score, cr.MinScore))
		}
		strengths = append(strengths, as.Strengths...)
		weaknesses = append(weaknesses, as.Weaknesses...)
		recs = append(recs, as.Recommendations...)
	}

	var total float64
	if weightSum > 0 {
		total = weighted / weightSum
	} else {
		total = plain / float64(len(analyzers))
	}
	bd.Total = clamp(int(math.Round(total)))
	bd.Strengths = capRationale(strengths)
	bd.Weaknesses = capRationale(append(floors, weaknesses...))
	bd.Recommendations = capRationale(recs)
	return bd, nil
}

// ScoreAll scores candidates in ordinal order. A candidate whose analyzer
// fails is logged and dropped; the others are still scored. ctx is checked
// between candidates.
func (e *Engine) ScoreAll(ctx context.Context, candidates []artifact.Candidate, gctx artifact.Context, criteria sampling.Criteria) (*Report, error) {
	if len(e.applied(gctx.Kind, criteria)) == 0 {
		return nil, fmt.Errorf("no analyzers match the criteria for %s", gctx.Kind)
	}

	ordered := make([]artifact.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	report := &Report{Dropped: make(map[string]error)}
	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scoring interrupted: %w", err)
		}
		bd, err := e.Score(c, gctx, criteria)
		if err != nil {
			report.Dropped[c.ID] = err
			e.logger.Warn("candidate dropped",
				zap.String("candidate", c.ID),
				zap.String("strategy", c.StrategyName),
				zap.Error(err),
			)
			continue
		}
		report.Scored = append(report.Scored, sampling.ScoredCandidate{Candidate: c, Score: bd})
	}

	sampling.SortAndRank(report.Scored)
	if e.earlyStop > 0 && len(report.Scored) > 1 && report.Scored[0].Score.Total >= e.earlyStop {
		report.Stopped = true
		report.Skipped = len(report.Scored) - 1
		e.logger.Debug("early stop",
			zap.String("candidate", report.Scored[0].ID),
			zap.Int("total", report.Scored[0].Score.Total),
			zap.Int("skipped", report.Skipped),
		)
		report.Scored = report.Scored[:1]
	}
	return report, nil
}

// capRationale de-duplicates and keeps the first maxRationale entries.
func capRationale(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == maxRationale {
			break
		}
	}
	return out
}
