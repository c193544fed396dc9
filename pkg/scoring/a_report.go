package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

var (
	listItem     = regexp.MustCompile(`^\s*([-*]|\d+\.)\s+\S`)
	reportGroups = []string{"overview", "dependencies", "build", "runtime", "security", "recommendations"}
)

// markdownDoc splits a report into lower-cased headings and their bodies,
// in document order.
type markdownDoc struct {
	lower    string
	sections []mdSection
}

type mdSection struct {
	heading string
	body    []string
}

func parseMarkdown(content string) markdownDoc {
	doc := markdownDoc{lower: strings.ToLower(content)}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
			doc.sections = append(doc.sections, mdSection{heading: heading})
			continue
		}
		if n := len(doc.sections); n > 0 {
			doc.sections[n-1].body = append(doc.sections[n-1].body, line)
		}
	}
	return doc
}

// section returns the body of the first heading starting with name.
func (d markdownDoc) section(name string) ([]string, bool) {
	for _, s := range d.sections {
		if strings.HasPrefix(s.heading, name) {
			return s.body, true
		}
	}
	return nil, false
}

func (d markdownDoc) mentions(term string) bool {
	return term != "" && strings.Contains(d.lower, strings.ToLower(term))
}

func countItems(lines []string) int {
	n := 0
	for _, l := range lines {
		if listItem.MatchString(l) {
			n++
		}
	}
	return n
}

// ReportAccuracy scores how many known facts about the context the report
// states.
type ReportAccuracy struct{}

func (a *ReportAccuracy) Criterion() string { return "accuracy" }

func (a *ReportAccuracy) Analyze(c artifact.Candidate, gctx artifact.Context) (Assessment, error) {
	if strings.TrimSpace(c.Content) == "" {
		return Assessment{}, fmt.Errorf("empty report")
	}
	doc := parseMarkdown(c.Content)

	var facts, missed []string
	check := func(term string) {
		if term == "" {
			return
		}
		facts = append(facts, term)
		if !doc.mentions(term) {
			missed = append(missed, term)
		}
	}
	check(gctx.Language)
	check(gctx.Framework)
	for _, dep := range gctx.Dependencies {
		check(dep)
	}
	for _, p := range gctx.Ports {
		check(fmt.Sprint(p))
	}

	if len(facts) == 0 {
		return Assessment{Score: 70}, nil
	}
	matched := len(facts) - len(missed)
	r := start(40 + int(math.Round(60*float64(matched)/float64(len(facts)))))
	if matched > 0 {
		r.credit(0, fmt.Sprintf("States %d of %d known facts", matched, len(facts)))
	}
	if len(missed) > 0 {
		r.penalize(0, fmt.Sprintf("Omits %s", strings.Join(missed, ", ")), "Reference the detected language, framework and dependencies")
	}
	return r.done(), nil
}

// ReportCompleteness scores coverage of the expected report sections.
type ReportCompleteness struct{}

func (a *ReportCompleteness) Criterion() string { return "completeness" }

func (a *ReportCompleteness) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseMarkdown(c.Content)
	found := 0
	var missing []string
	for _, g := range reportGroups {
		if _, ok := doc.section(g); ok {
			found++
		} else {
			missing = append(missing, g)
		}
	}
	r := start(int(math.Round(100 * float64(found) / float64(len(reportGroups)))))
	if len(missing) == 0 {
		r.credit(0, "Covers every expected section")
	} else {
		r.penalize(0, fmt.Sprintf("Missing sections: %s", strings.Join(missing, ", ")), fmt.Sprintf("Add a %s section", missing[0]))
	}
	return r.done(), nil
}

// ReportRelevance scores whether the report addresses this application and
// its deployment target.
type ReportRelevance struct{}

func (a *ReportRelevance) Criterion() string { return "relevance" }

func (a *ReportRelevance) Analyze(c artifact.Candidate, gctx artifact.Context) (Assessment, error) {
	doc := parseMarkdown(c.Content)
	r := start(40)

	if doc.mentions(gctx.Name()) {
		r.credit(20, "Names the application")
	} else {
		r.penalize(0, "Does not name the application", "")
	}
	if gctx.Environment != "" {
		if doc.mentions(gctx.Environment) {
			r.credit(15, "Addresses the target environment")
		} else {
			r.penalize(0, fmt.Sprintf("Ignores the %s environment", gctx.Environment), fmt.Sprintf("Tailor advice to %s", gctx.Environment))
		}
	}
	if gctx.SecurityLevel != "" && doc.mentions(gctx.SecurityLevel) {
		r.credit(10, "")
	}
	switch n := len(strings.TrimSpace(c.Content)); {
	case n < 200:
		r.penalize(0, "Report is very short", "Expand the analysis")
	case n > 20000:
		r.penalize(10, "Report is excessively long", "Trim the analysis to what is actionable")
	default:
		r.credit(15, "")
	}
	return r.done(), nil
}

// ReportActionability scores the concrete recommendations offered.
type ReportActionability struct{}

func (a *ReportActionability) Criterion() string { return "actionability" }

func (a *ReportActionability) Analyze(c artifact.Candidate, _ artifact.Context) (Assessment, error) {
	doc := parseMarkdown(c.Content)

	var n int
	if body, ok := doc.section("recommendations"); ok {
		n = countItems(body)
	} else {
		n = countItems(strings.Split(c.Content, "\n"))
	}

	r := start(20 + 16*n)
	if n == 0 {
		r.penalize(0, "No concrete recommendations", "List prioritized, concrete next steps")
	} else {
		r.credit(0, fmt.Sprintf("%d recommendations", n))
	}
	if strings.Contains(c.Content, "`") {
		r.credit(10, "Includes concrete commands")
	}
	return r.done(), nil
}
