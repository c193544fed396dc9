package strategy

import (
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// Registry holds strategies in registration order. Registration order is
// the invocation order and the authority for stable-first tie-breaking.
// A Registry is built once at startup and read concurrently afterwards.
type Registry struct {
	strategies []Strategy
	byName     map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Register adds a strategy. Names must be unique and non-empty.
func (r *Registry) Register(s Strategy) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("strategy name is empty")
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("strategy %q already registered", name)
	}
	if len(s.Kinds()) == 0 {
		return fmt.Errorf("strategy %q declares no artifact kinds", name)
	}
	r.strategies = append(r.strategies, s)
	r.byName[name] = s
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(strategies ...Strategy) {
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get looks up a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns all strategy names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	return names
}

// ForKind returns the strategies supporting kind, in registration order.
func (r *Registry) ForKind(kind artifact.Kind) []Strategy {
	var out []Strategy
	for _, s := range r.strategies {
		if supports(s, kind) {
			out = append(out, s)
		}
	}
	return out
}

// Resolve returns the strategies to invoke for kind. An empty names list
// selects every strategy registered for the kind. Named strategies are
// returned in registration order, not request order, so invocation order
// never depends on how a caller spelled the request.
func (r *Registry) Resolve(kind artifact.Kind, names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return r.ForKind(kind), nil
	}

	wanted := make(map[string]bool, len(names))
	var unknown, unsupported []string
	for _, name := range names {
		s, ok := r.byName[name]
		switch {
		case !ok:
			unknown = append(unknown, name)
		case !supports(s, kind):
			unsupported = append(unsupported, name)
		default:
			wanted[name] = true
		}
	}
	if len(unknown) > 0 || len(unsupported) > 0 {
		return nil, &SelectionError{Kind: kind, Unknown: unknown, Unsupported: unsupported}
	}

	var out []Strategy
	for _, s := range r.strategies {
		if wanted[s.Name()] {
			out = append(out, s)
		}
	}
	return out, nil
}

// DefaultRegistry returns a registry with every built-in strategy. gen may
// be nil, in which case the ai-assisted strategy fails at generation time.
func DefaultRegistry(gen ContentGenerator) *Registry {
	r := NewRegistry()
	r.MustRegister(
		&StandardImage{},
		&MultiStageImage{},
		&HardenedImage{},
		&SlimImage{},
		&MinimalManifest{},
		&ProductionManifest{},
		&HardenedManifest{},
		&SummaryReport{},
		&DetailedReport{},
		NewAssisted(gen),
	)
	return r
}

// SelectionError reports requested strategy names that are not registered
// or do not support the requested kind.
type SelectionError struct {
	Kind        artifact.Kind
	Unknown     []string
	Unsupported []string
}

func (e *SelectionError) Error() string {
	if len(e.Unknown) > 0 {
		return "unknown strategies: " + strings.Join(e.Unknown, ", ")
	}
	return fmt.Sprintf("strategies do not support %s: %s", e.Kind, strings.Join(e.Unsupported, ", "))
}
