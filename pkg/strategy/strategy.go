// Package strategy holds the pluggable generation strategies and the
// candidate generator that fans a request out across them.
package strategy

import (
	"context"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// Strategy is a named generation algorithm producing exactly one artifact
// per invocation. Generate may call slow or unreliable collaborators and
// must honour ctx cancellation.
type Strategy interface {
	// Name returns the unique registry name.
	Name() string
	// Kinds returns the artifact kinds this strategy can produce.
	Kinds() []artifact.Kind
	// Describe returns static metadata about the strategy.
	Describe() Info
	// Generate produces one artifact for the context.
	Generate(ctx context.Context, gctx artifact.Context) (Output, error)
}

// Info is static, human-facing strategy metadata.
type Info struct {
	Name          string          `json:"name"`
	Kinds         []artifact.Kind `json:"kinds"`
	Description   string          `json:"description"`
	Deterministic bool            `json:"deterministic"` // same context -> same content
}

// Output is what a strategy hands back to the generator. The generator
// stamps identity, ordinal and timestamp to turn it into a Candidate.
type Output struct {
	Content  string
	Features []string
	Metadata map[string]any
}

// ContentGenerator is the external AI content service used by the
// ai-assisted strategies. Treated as fallible and latency-bearing.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string, gctx artifact.Context) (string, error)
}

func supports(s Strategy, kind artifact.Kind) bool {
	for _, k := range s.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
