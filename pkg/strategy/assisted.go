package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

// ErrNoContentGenerator is returned by the ai-assisted strategy when no
// ContentGenerator is wired.
var ErrNoContentGenerator = errors.New("no content generator configured")

// Assisted delegates generation to an external ContentGenerator with a
// kind-specific prompt. It supports every artifact kind.
type Assisted struct {
	gen ContentGenerator
}

// NewAssisted creates the ai-assisted strategy. gen may be nil.
func NewAssisted(gen ContentGenerator) *Assisted {
	return &Assisted{gen: gen}
}

func (s *Assisted) Name() string { return "ai-assisted" }

func (s *Assisted) Kinds() []artifact.Kind { return artifact.Kinds() }

func (s *Assisted) Describe() Info {
	return Info{Name: s.Name(), Kinds: s.Kinds(), Description: "Delegates to the AI content service with a kind-specific prompt"}
}

func (s *Assisted) Generate(ctx context.Context, gctx artifact.Context) (Output, error) {
	if s.gen == nil {
		return Output{}, ErrNoContentGenerator
	}
	prompt := buildPrompt(gctx)
	raw, err := s.gen.Generate(ctx, prompt, gctx)
	if err != nil {
		return Output{}, fmt.Errorf("content generator: %w", err)
	}
	content := stripFences(raw)
	if strings.TrimSpace(content) == "" {
		return Output{}, fmt.Errorf("content generator returned an empty %s", gctx.Kind)
	}
	return Output{
		Content:  content,
		Features: detectFeatures(gctx.Kind, content),
		Metadata: map[string]any{"prompt_chars": len(prompt), "assisted": true},
	}, nil
}

func buildPrompt(gctx artifact.Context) string {
	var b strings.Builder
	switch gctx.Kind {
	case artifact.KindBuildImage:
		b.WriteString("Write a production-quality Dockerfile.\n")
	case artifact.KindManifest:
		b.WriteString("Write Kubernetes manifests (Deployment and Service at minimum) as multi-document YAML.\n")
	case artifact.KindAnalysis:
		b.WriteString("Write a Markdown analysis of the repository with Overview, Dependencies, Build, Runtime, Security and Recommendations sections.\n")
	}
	fmt.Fprintf(&b, "Application: %s\n", gctx.Name())
	fmt.Fprintf(&b, "Language: %s\n", orUnknown(gctx.Language))
	if gctx.Framework != "" {
		fmt.Fprintf(&b, "Framework: %s\n", gctx.Framework)
	}
	if len(gctx.Dependencies) > 0 {
		fmt.Fprintf(&b, "Dependencies: %s\n", strings.Join(gctx.Dependencies, ", "))
	}
	fmt.Fprintf(&b, "Ports: %s\n", portList(gctx.Ports))
	if gctx.Environment != "" {
		fmt.Fprintf(&b, "Environment: %s\n", gctx.Environment)
	}
	if gctx.SecurityLevel != "" {
		fmt.Fprintf(&b, "Security level: %s\n", gctx.SecurityLevel)
	}
	b.WriteString("Respond with the artifact only.")
	return b.String()
}

// stripFences removes a surrounding Markdown code fence, if any.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return ""
	}
	t = strings.TrimSuffix(strings.TrimRight(t, "\n "), "```")
	return strings.TrimRight(t, "\n ") + "\n"
}

// detectFeatures tags free-form content with the same feature vocabulary
// the template strategies use.
func detectFeatures(kind artifact.Kind, content string) []string {
	lower := strings.ToLower(content)
	var out []string
	add := func(ok bool, tag string) {
		if ok {
			out = append(out, tag)
		}
	}

	switch kind {
	case artifact.KindBuildImage:
		froms := 0
		for _, line := range strings.Split(lower, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "from ") {
				froms++
			}
		}
		add(froms <= 1, "single-stage")
		add(froms > 1, "multi-stage")
		add(strings.Contains(lower, "distroless"), "distroless")
		add(strings.Contains(lower, "alpine"), "alpine")
		add(strings.Contains(lower, "\nuser ") && !strings.Contains(lower, "\nuser root"), "non-root")
		add(strings.Contains(lower, "healthcheck"), "healthcheck")
		add(strings.Contains(lower, "label "), "labels")
	case artifact.KindManifest:
		add(strings.Contains(content, "kind: Service"), "service")
		add(strings.Contains(content, "livenessProbe") || strings.Contains(content, "readinessProbe"), "probes")
		add(strings.Contains(content, "limits:"), "resource-limits")
		add(strings.Contains(content, "HorizontalPodAutoscaler"), "autoscaling")
		add(strings.Contains(content, "PodDisruptionBudget"), "pdb")
		add(strings.Contains(content, "RollingUpdate"), "rolling-update")
		add(strings.Contains(content, "runAsNonRoot: true"), "non-root")
		add(strings.Contains(content, "readOnlyRootFilesystem: true"), "read-only-fs")
		add(strings.Contains(content, "NetworkPolicy"), "network-policy")
	case artifact.KindAnalysis:
		for _, section := range []string{"overview", "dependencies", "build", "runtime", "security", "recommendations"} {
			add(strings.Contains(lower, "## "+section), section)
		}
	}
	return out
}
