package sampling

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// ErrNoSuitableCandidate is returned when selection runs on an empty list.
// The constraint fallback makes this unreachable once at least one
// candidate has been scored.
var ErrNoSuitableCandidate = errors.New("no suitable candidate")

// NoCandidatesError means no strategy produced a usable candidate. It is
// fatal to the pipeline run.
type NoCandidatesError struct {
	Kind      artifact.Kind
	Requested []string
	Failures  map[string]error // strategy name -> cause
	TimedOut  bool
}

func (e *NoCandidatesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no candidates generated for %s", e.Kind)
	if len(e.Requested) > 0 {
		fmt.Fprintf(&b, " (requested %d strategies)", len(e.Requested))
	}
	if e.TimedOut {
		b.WriteString(": pipeline deadline exceeded")
	}
	if len(e.Failures) > 0 {
		names := make([]string, 0, len(e.Failures))
		for name := range e.Failures {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, "; "))
	}
	return b.String()
}

// StrategyError wraps one strategy's generation failure. Recovered locally.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// ScoringError wraps one candidate's analyzer failure. Recovered locally.
type ScoringError struct {
	CandidateID string
	Criterion   string
	Err         error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring candidate %s (%s): %v", e.CandidateID, e.Criterion, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }
