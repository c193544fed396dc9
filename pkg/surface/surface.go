// Package surface renders sampling results for people and machines:
// a terminal table, a Markdown summary and raw JSON.
package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
)

// Renderer produces formatted output from a Result.
type Renderer interface {
	// Render writes the formatted result to the writer.
	Render(w io.Writer, result *sampling.Result) error
}

// ForFormat returns the renderer for "text", "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text", "terminal":
		return &TerminalRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want text, markdown or json)", format)
}

func headline(r *sampling.Result) string {
	return fmt.Sprintf("SampleForge %s: %s wins with Grade %s, Score %d",
		r.Kind, r.Best.StrategyName, scoring.GradeFromScore(r.Best.Score.Total), r.Best.Score.Total)
}

// notes lists provenance worth calling out below the ranking.
func notes(r *sampling.Result) []string {
	var out []string
	m := r.Metadata
	if m.FromCache {
		out = append(out, "served from cache")
	}
	if m.TimedOut {
		out = append(out, "deadline expired; ranking covers the candidates that finished in time")
	}
	if m.ConstraintFallback {
		out = append(out, "no candidate satisfied the constraints; the best overall candidate was chosen")
	}
	if tb := m.TieBreak; tb != nil {
		out = append(out, fmt.Sprintf("tie-break (%s, margin %d) between scores %d and %d decided by %s",
			tb.Policy, tb.Margin, tb.Scores[0], tb.Scores[1], tb.Strategy))
	}
	if len(m.StrategiesFailed) > 0 {
		out = append(out, "failed strategies: "+strings.Join(m.StrategiesFailed, ", "))
	}
	return out
}
