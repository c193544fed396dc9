package surface

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
)

// rankingTable lays out one row per candidate with a column per criterion.
func rankingTable(r *sampling.Result) table.Writer {
	criteria := r.Criteria.Names()

	tw := table.NewWriter()
	header := table.Row{"#", "Strategy", "Score", "Grade"}
	for _, c := range criteria {
		header = append(header, c)
	}
	header = append(header, "Features")
	tw.AppendHeader(header)

	for _, sc := range r.Candidates {
		name := sc.StrategyName
		if sc.ID == r.Best.ID {
			name += " *"
		}
		row := table.Row{sc.Rank, name, sc.Score.Total, scoring.GradeFromScore(sc.Score.Total)}
		for _, c := range criteria {
			if v, ok := sc.Score.PerCriterion[c]; ok {
				row = append(row, v)
			} else {
				row = append(row, "-")
			}
		}
		row = append(row, strings.Join(sc.Features, ", "))
		tw.AppendRow(row)
	}

	configs := []table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignCenter},
	}
	for i := range criteria {
		configs = append(configs, table.ColumnConfig{Number: 5 + i, Align: text.AlignRight})
	}
	configs = append(configs, table.ColumnConfig{Number: 5 + len(criteria), WidthMax: 40})
	tw.SetColumnConfigs(configs)
	return tw
}
