package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

var analysisKinds = []artifact.Kind{artifact.KindAnalysis}

type report struct {
	b strings.Builder
}

func (r *report) heading(level int, title string) {
	if r.b.Len() > 0 {
		r.b.WriteByte('\n')
	}
	fmt.Fprintf(&r.b, "%s %s\n\n", strings.Repeat("#", level), title)
}

func (r *report) bullet(format string, args ...any) {
	fmt.Fprintf(&r.b, "- "+format+"\n", args...)
}

func (r *report) numbered(n int, format string, args ...any) {
	fmt.Fprintf(&r.b, "%d. "+format+"\n", append([]any{n}, args...)...)
}

func (r *report) String() string { return r.b.String() }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func portList(ports []int) string {
	if len(ports) == 0 {
		return "none declared"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}

// SummaryReport writes a short overview with one headline recommendation.
type SummaryReport struct{}

func (s *SummaryReport) Name() string           { return "summary" }
func (s *SummaryReport) Kinds() []artifact.Kind { return analysisKinds }

func (s *SummaryReport) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Short overview with a headline recommendation", Deterministic: true}
}

func (s *SummaryReport) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	var r report
	r.heading(1, "Repository analysis: "+gctx.Name())
	r.heading(2, "Overview")
	r.bullet("Language: %s", orUnknown(gctx.Language))
	r.bullet("Framework: %s", orUnknown(gctx.Framework))
	r.bullet("Ports: %s", portList(gctx.Ports))
	r.heading(2, "Recommendations")
	r.bullet("Containerize the application with a multi-stage build.")

	return Output{
		Content:  r.String(),
		Features: []string{"overview", "recommendations"},
		Metadata: map[string]any{"sections": 2},
	}, nil
}

// DetailedReport covers dependencies, build, runtime and security, with a
// numbered list of recommendations derived from the context.
type DetailedReport struct{}

func (s *DetailedReport) Name() string           { return "detailed" }
func (s *DetailedReport) Kinds() []artifact.Kind { return analysisKinds }

func (s *DetailedReport) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Full report covering dependencies, build, runtime and security", Deterministic: true}
}

func (s *DetailedReport) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	tc := toolchainFor(gctx.Language, gctx.Framework)

	var r report
	r.heading(1, "Repository analysis: "+gctx.Name())

	r.heading(2, "Overview")
	r.bullet("Language: %s", orUnknown(gctx.Language))
	r.bullet("Framework: %s", orUnknown(gctx.Framework))
	r.bullet("Target environment: %s", orUnknown(gctx.Environment))
	r.bullet("Security level: %s", orUnknown(gctx.SecurityLevel))

	r.heading(2, "Dependencies")
	if len(gctx.Dependencies) == 0 {
		r.bullet("No dependencies detected.")
	}
	for _, dep := range gctx.Dependencies {
		r.bullet("%s", dep)
	}

	r.heading(2, "Build")
	if knownLanguage(gctx.Language) {
		r.bullet("Builder image: %s", tc.BuilderImage)
		if len(tc.DepFiles) > 0 {
			r.bullet("Dependency manifests: %s", strings.Join(tc.DepFiles, ", "))
		}
		if tc.Install != "" {
			r.bullet("Install: `%s`", tc.Install)
		}
		if tc.Build != "" {
			r.bullet("Compile: `%s`", tc.Build)
		}
	} else {
		r.bullet("No known toolchain for %s; a generic alpine base is assumed.", orUnknown(gctx.Language))
	}

	r.heading(2, "Runtime")
	r.bullet("Ports: %s", portList(gctx.Ports))
	r.bullet("Suggested runtime image: %s", tc.RuntimeImage)
	r.bullet("Entrypoint: `%s`", strings.Join(tc.Cmd, " "))

	r.heading(2, "Security")
	r.bullet("Run the process as a non-root user.")
	if gctx.SecurityLevel == artifact.SecurityHigh || gctx.SecurityLevel == artifact.SecurityStrict {
		r.bullet("Prefer the distroless image %s.", tc.DistrolessImage)
	}

	r.heading(2, "Recommendations")
	recs := []string{
		"Pin base images to explicit version tags.",
		"Use a multi-stage build to keep the toolchain out of the runtime image.",
		"Expose /health and /ready endpoints for orchestration probes.",
		"Set CPU and memory requests and limits for every container.",
	}
	if len(tc.DepFiles) > 0 {
		recs = append(recs, fmt.Sprintf("Copy %s before the source tree to cache dependency layers.", strings.Join(tc.DepFiles, " and ")))
	}
	if gctx.Environment == artifact.EnvProduction {
		recs = append(recs, "Run at least three replicas behind a PodDisruptionBudget.")
	}
	for i, rec := range recs {
		r.numbered(i+1, "%s", rec)
	}

	return Output{
		Content:  r.String(),
		Features: []string{"overview", "dependencies", "build", "runtime", "security", "recommendations"},
		Metadata: map[string]any{"sections": 6, "recommendations": len(recs)},
	}, nil
}
