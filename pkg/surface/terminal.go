package surface

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
)

// TerminalRenderer renders a Result as a colored ranking table.
type TerminalRenderer struct {
	// ShowContent prints the winning artifact after the ranking.
	ShowContent bool
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func gradeColor(grade string) string {
	if noColor() {
		return ""
	}
	switch grade {
	case "A", "B":
		return colorGreen
	case "C":
		return colorYellow
	case "D", "F":
		return colorRed
	default:
		return ""
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, result *sampling.Result) error {
	best := result.Best
	grade := scoring.GradeFromScore(best.Score.Total)
	fmt.Fprintf(w, "%s\n\n", colored(bold(headline(result)), gradeColor(grade)))

	tw := rankingTable(result)
	if noColor() {
		tw.SetStyle(table.StyleLight)
	} else {
		tw.SetStyle(table.StyleColoredDark)
	}
	fmt.Fprintln(w, tw.Render())
	fmt.Fprintln(w)

	section(w, "Strengths", "+", best.Score.Strengths)
	section(w, "Weaknesses", "-", best.Score.Weaknesses)
	section(w, "Recommendations", "•", best.Score.Recommendations)

	for _, n := range notes(result) {
		fmt.Fprintln(w, dim("note: "+n))
	}
	fmt.Fprintf(w, "%s\n", dim(fmt.Sprintf("generation %dms, scoring %dms, %d candidates",
		result.Metadata.GenerationDurationMs, result.Metadata.ScoringDurationMs, result.Metadata.TotalCandidates)))

	if r.ShowContent {
		fmt.Fprintf(w, "\n%s\n%s", bold("Selected artifact ("+best.StrategyName+"):"), best.Content)
		if !strings.HasSuffix(best.Content, "\n") {
			fmt.Fprintln(w)
		}
	}
	return nil
}

func section(w io.Writer, title, bullet string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", bold(title))
	for _, it := range items {
		for i, line := range wrapText(it, 76) {
			if i == 0 {
				fmt.Fprintf(w, "  %s %s\n", bullet, line)
			} else {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintln(w)
}

// wrapText wraps a string at the given width, returning lines.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]

	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)
	return lines
}
