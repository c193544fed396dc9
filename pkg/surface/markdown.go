package surface

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
)

// Summary is a Markdown digest of a Result, suitable for a pull request
// comment or a CI check.
type Summary struct {
	Title      string `json:"title"`
	Body       string `json:"body"`       // Markdown
	Conclusion string `json:"conclusion"` // success, neutral, failure
}

// MarkdownRenderer writes the Markdown body of a Summary.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(w io.Writer, result *sampling.Result) error {
	_, err := io.WriteString(w, r.BuildSummary(result).Body)
	return err
}

// RenderSummary writes the whole Summary as JSON.
func (r *MarkdownRenderer) RenderSummary(w io.Writer, result *sampling.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.BuildSummary(result))
}

// BuildSummary creates the Summary for a Result.
func (r *MarkdownRenderer) BuildSummary(result *sampling.Result) Summary {
	return Summary{
		Title:      headline(result),
		Body:       buildMarkdown(result),
		Conclusion: gradeToConclusion(scoring.GradeFromScore(result.Best.Score.Total)),
	}
}

func gradeToConclusion(grade string) string {
	switch grade {
	case "A", "B":
		return "success"
	case "C":
		return "neutral"
	default:
		return "failure"
	}
}

func buildMarkdown(result *sampling.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", headline(result))

	sb.WriteString("### Ranking\n\n")
	sb.WriteString(rankingTable(result).RenderMarkdown())
	sb.WriteString("\n\n")

	best := result.Best.Score
	bullets := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "### %s\n\n", title)
		for _, it := range items {
			fmt.Fprintf(&sb, "- %s\n", it)
		}
		sb.WriteString("\n")
	}
	bullets("Strengths", best.Strengths)
	bullets("Weaknesses", best.Weaknesses)
	bullets("Recommendations", best.Recommendations)

	if n := notes(result); len(n) > 0 {
		sb.WriteString("### Notes\n\n")
		for _, line := range n {
			fmt.Fprintf(&sb, "- _%s_\n", line)
		}
		sb.WriteString("\n")
	}

	fence := "```"
	if strings.Contains(result.Best.Content, fence) {
		fence = "~~~"
	}
	fmt.Fprintf(&sb, "<details><summary>Selected artifact (%s)</summary>\n\n%s%s\n%s\n%s\n\n</details>\n",
		result.Best.StrategyName, fence, contentLang(result), strings.TrimRight(result.Best.Content, "\n"), fence)
	return sb.String()
}

func contentLang(r *sampling.Result) string {
	switch r.Kind {
	case artifact.KindBuildImage:
		return "dockerfile"
	case artifact.KindManifest:
		return "yaml"
	default:
		return "markdown"
	}
}
