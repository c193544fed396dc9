// Package selection applies post-scoring constraints to a ranked candidate
// list and picks the winner, tie-breaking between near-equal leaders.
package selection

import (
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Filter applies constraints in order: minimum score, required tags,
// forbidden tags, then the soft strategy preference. The input order is
// preserved and candidates are never modified. The result may be empty.
func Filter(list []sampling.ScoredCandidate, c sampling.Constraints) []sampling.ScoredCandidate {
	out := make([]sampling.ScoredCandidate, 0, len(list))
	for _, sc := range list {
		if sc.Score.Total < c.MinScore {
			continue
		}
		if !includesAll(sc, c.MustInclude) {
			continue
		}
		if includesAny(sc, c.MustNotInclude) {
			continue
		}
		out = append(out, sc)
	}

	if c.PreferredStrategy == "" {
		return out
	}
	var preferred []sampling.ScoredCandidate
	for _, sc := range out {
		if sc.StrategyName == c.PreferredStrategy {
			preferred = append(preferred, sc)
		}
	}
	if len(preferred) == 0 {
		return out
	}
	return preferred
}

func includesAll(sc sampling.ScoredCandidate, tags []string) bool {
	for _, t := range tags {
		if !mentions(sc, t) {
			return false
		}
	}
	return true
}

func includesAny(sc sampling.ScoredCandidate, tags []string) bool {
	for _, t := range tags {
		if mentions(sc, t) {
			return true
		}
	}
	return false
}

// mentions reports whether tag appears, case-insensitively, as a feature,
// a metadata key, a string metadata value, or within a strength. Weaknesses
// and recommendations describe what is missing and never count.
func mentions(sc sampling.ScoredCandidate, tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return true
	}
	for _, f := range sc.Features {
		if strings.ToLower(f) == tag {
			return true
		}
	}
	for k, v := range sc.Metadata {
		if strings.ToLower(k) == tag {
			return true
		}
		if s, ok := v.(string); ok && strings.ToLower(s) == tag {
			return true
		}
	}
	for _, s := range sc.Score.Strengths {
		if strings.Contains(strings.ToLower(s), tag) {
			return true
		}
	}
	return false
}

// Describe renders constraints for warnings and logs.
func Describe(c sampling.Constraints) string {
	var parts []string
	if c.MinScore > 0 {
		parts = append(parts, fmt.Sprintf("minScore=%d", c.MinScore))
	}
	if len(c.MustInclude) > 0 {
		parts = append(parts, "mustInclude="+strings.Join(c.MustInclude, ","))
	}
	if len(c.MustNotInclude) > 0 {
		parts = append(parts, "mustNotInclude="+strings.Join(c.MustNotInclude, ","))
	}
	if c.PreferredStrategy != "" {
		parts = append(parts, "preferredStrategy="+c.PreferredStrategy)
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
