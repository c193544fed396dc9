package scoring

import (
	"fmt"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Override adjusts one criterion of a preset. Nil fields keep the preset
// value.
type Override struct {
	Weight   *float64 `yaml:"weight" json:"weight,omitempty"`
	MinScore *int     `yaml:"min_score" json:"min_score,omitempty"`
}

// Merge applies overrides onto the preset for kind and returns a new
// Criteria. Criteria unknown to the preset are added when they carry a
// weight. Weights outside [0,1] are rejected.
func Merge(kind artifact.Kind, overrides map[string]Override) (sampling.Criteria, error) {
	return Apply(Preset(kind), overrides)
}

// Apply is Merge over an arbitrary base rubric. base is not modified.
func Apply(base sampling.Criteria, overrides map[string]Override) (sampling.Criteria, error) {
	out := base.Clone()
	for name, o := range overrides {
		c := out[name]
		if o.Weight != nil {
			if *o.Weight < 0 || *o.Weight > 1 {
				return nil, fmt.Errorf("criterion %s: weight %.2f outside [0,1]", name, *o.Weight)
			}
			c.Weight = *o.Weight
		}
		if o.MinScore != nil {
			if *o.MinScore < 0 || *o.MinScore > 100 {
				return nil, fmt.Errorf("criterion %s: min score %d outside [0,100]", name, *o.MinScore)
			}
			c.MinScore = *o.MinScore
		}
		out[name] = c
	}
	return out, nil
}

// ValidateCriteria checks that every weight is within [0,1].
func ValidateCriteria(c sampling.Criteria) error {
	for _, name := range c.Names() {
		cr := c[name]
		if cr.Weight < 0 || cr.Weight > 1 {
			return fmt.Errorf("criterion %s: weight %.2f outside [0,1]", name, cr.Weight)
		}
		if cr.MinScore < 0 || cr.MinScore > 100 {
			return fmt.Errorf("criterion %s: min score %d outside [0,100]", name, cr.MinScore)
		}
	}
	return nil
}
