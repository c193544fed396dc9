package scoring

import (
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
)

// Presets returns the default criteria for every artifact kind. Each call
// builds fresh maps, so callers may modify the result.
func Presets() map[artifact.Kind]sampling.Criteria {
	return map[artifact.Kind]sampling.Criteria{
		artifact.KindBuildImage: {
			"security":        {Weight: 0.35, MinScore: 50},
			"performance":     {Weight: 0.25},
			"size":            {Weight: 0.20},
			"maintainability": {Weight: 0.20},
		},
		artifact.KindManifest: {
			"security":            {Weight: 0.30, MinScore: 50},
			"reliability":         {Weight: 0.30, MinScore: 50},
			"resource-efficiency": {Weight: 0.20},
			"best-practices":      {Weight: 0.20},
		},
		artifact.KindAnalysis: {
			"accuracy":      {Weight: 0.30},
			"completeness":  {Weight: 0.30, MinScore: 50},
			"relevance":     {Weight: 0.20},
			"actionability": {Weight: 0.20},
		},
	}
}

// Preset returns the default criteria for kind, or nil for an unknown kind.
func Preset(kind artifact.Kind) sampling.Criteria {
	return Presets()[kind]
}

// DefaultAnalyzers returns the analyzer set for kind.
func DefaultAnalyzers(kind artifact.Kind) []Analyzer {
	switch kind {
	case artifact.KindBuildImage:
		return []Analyzer{
			&ImageSecurity{},
			&ImagePerformance{},
			&ImageSize{},
			&ImageMaintainability{},
		}
	case artifact.KindManifest:
		return []Analyzer{
			&ManifestSecurity{},
			&ManifestReliability{},
			&ManifestResources{},
			&ManifestBestPractices{},
		}
	case artifact.KindAnalysis:
		return []Analyzer{
			&ReportAccuracy{},
			&ReportCompleteness{},
			&ReportRelevance{},
			&ReportActionability{},
		}
	}
	return nil
}
