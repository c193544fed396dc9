// Package scoring implements the SampleForge candidate scoring engine.
// It evaluates generated artifacts against per-kind criteria and produces
// explainable, weighted composite scores.
package scoring

import "github.com/sampleforge/sampleforge/pkg/artifact"

// Analyzer scores one criterion for one candidate. Analyzers are stateless
// and deterministic: the same candidate always yields the same assessment.
type Analyzer interface {
	// Criterion returns the criterion name this analyzer scores.
	Criterion() string
	// Analyze computes the subscore and rationale for a candidate.
	Analyze(c artifact.Candidate, gctx artifact.Context) (Assessment, error)
}

// Assessment is the output of a single analyzer.
type Assessment struct {
	Score           int      `json:"score"` // 0-100
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// assessment accumulates score adjustments and rationale.
type assessment struct {
	Assessment
}

func start(base int) *assessment {
	return &assessment{Assessment{Score: base}}
}

func (a *assessment) credit(points int, strength string) {
	a.Score += points
	if strength != "" {
		a.Strengths = append(a.Strengths, strength)
	}
}

func (a *assessment) penalize(points int, weakness, fix string) {
	a.Score -= points
	if weakness != "" {
		a.Weaknesses = append(a.Weaknesses, weakness)
	}
	if fix != "" {
		a.Recommendations = append(a.Recommendations, fix)
	}
}

func (a *assessment) done() Assessment {
	a.Score = clamp(a.Score)
	return a.Assessment
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// GradeFromScore maps a composite score to a letter grade.
func GradeFromScore(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
