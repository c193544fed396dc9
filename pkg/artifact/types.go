// Package artifact defines the input and output vocabulary of SampleForge:
// the generation context handed to strategies and the candidate artifacts
// they produce. These types are shared across every other package.
package artifact

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind identifies the artifact domain a context asks for.
type Kind string

const (
	KindBuildImage Kind = "build-image"
	KindManifest   Kind = "manifest"
	KindAnalysis   Kind = "analysis"
)

// Kinds lists every supported artifact kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindBuildImage, KindManifest, KindAnalysis}
}

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Kinds(), k) {
		return "", fmt.Errorf("unknown artifact kind %q (want one of build-image, manifest, analysis)", s)
	}
	return k, nil
}

// Environment values accepted in Context.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Security levels accepted in Context.SecurityLevel.
const (
	SecurityStandard = "standard"
	SecurityHigh     = "high"
	SecurityStrict   = "strict"
)

// Context describes what to generate for. It is built once per request by a
// ContextBuilder and passed by value through the pipeline.
type Context struct {
	Kind          Kind              `json:"kind" yaml:"kind"`
	SessionID     string            `json:"session_id,omitempty" yaml:"session_id"`
	AppName       string            `json:"app_name,omitempty" yaml:"app_name"`
	RepoPath      string            `json:"repo_path,omitempty" yaml:"repo_path"`
	Language      string            `json:"language,omitempty" yaml:"language"`
	Framework     string            `json:"framework,omitempty" yaml:"framework"`
	Dependencies  []string          `json:"dependencies,omitempty" yaml:"dependencies"`
	Ports         []int             `json:"ports,omitempty" yaml:"ports"`
	Environment   string            `json:"environment,omitempty" yaml:"environment"`
	SecurityLevel string            `json:"security_level,omitempty" yaml:"security_level"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// Validate reports the first structural problem with the context. Kind
// must already be canonical; ParseKind normalizes user input.
func (c Context) Validate() error {
	if !slices.Contains(Kinds(), c.Kind) {
		if k, err := ParseKind(string(c.Kind)); err == nil {
			return fmt.Errorf("artifact kind %q is not canonical (use %q)", c.Kind, k)
		}
		return fmt.Errorf("unknown artifact kind %q (want one of build-image, manifest, analysis)", c.Kind)
	}
	for _, p := range c.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("port %d out of range", p)
		}
	}
	switch c.Environment {
	case "", EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	switch c.SecurityLevel {
	case "", SecurityStandard, SecurityHigh, SecurityStrict:
	default:
		return fmt.Errorf("unknown security level %q", c.SecurityLevel)
	}
	return nil
}

// PrimaryPort returns the first declared port, or def when none is set.
func (c Context) PrimaryPort(def int) int {
	if len(c.Ports) == 0 {
		return def
	}
	return c.Ports[0]
}

// Name returns the application name, defaulting to "app".
func (c Context) Name() string {
	if c.AppName == "" {
		return "app"
	}
	return c.AppName
}

// Candidate is one generated artifact produced by a single strategy.
// Candidates are immutable once created.
type Candidate struct {
	ID           string         `json:"id"`
	StrategyName string         `json:"strategy_name"`
	Kind         Kind           `json:"kind"`
	Content      string         `json:"content"`
	Features     []string       `json:"features,omitempty"` // feature tags declared by the strategy
	Metadata     map[string]any `json:"metadata,omitempty"`
	Ordinal      int            `json:"ordinal"` // position in the strategy invocation order
	GeneratedAt  time.Time      `json:"generated_at"`
}

// HasFeature reports whether the candidate declares the given feature tag.
func (c Candidate) HasFeature(tag string) bool {
	for _, f := range c.Features {
		if strings.EqualFold(f, tag) {
			return true
		}
	}
	return false
}
