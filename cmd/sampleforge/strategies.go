package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

func newStrategiesCmd(g *globalOpts) *cobra.Command {
	var (
		kind      string
		outputFmt string
	)

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List the registered generation strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := buildApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			return listStrategies(cmd.OutOrStdout(), a.Registry, kind, outputFmt)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list strategies for this artifact kind")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")

	return cmd
}

func listStrategies(w io.Writer, reg *strategy.Registry, kind, outputFmt string) error {
	var list []strategy.Strategy
	if kind != "" {
		k, err := artifact.ParseKind(kind)
		if err != nil {
			return err
		}
		list = reg.ForKind(k)
	} else {
		for _, name := range reg.Names() {
			s, _ := reg.Get(name)
			list = append(list, s)
		}
	}

	infos := make([]strategy.Info, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Describe())
	}

	switch outputFmt {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", outputFmt)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kinds", "Deterministic", "Description"})
	for _, info := range infos {
		kinds := make([]string, len(info.Kinds))
		for i, k := range info.Kinds {
			kinds[i] = string(k)
		}
		det := "no"
		if info.Deterministic {
			det = "yes"
		}
		t.AppendRow(table.Row{info.Name, strings.Join(kinds, ", "), det, info.Description})
	}
	t.Render()
	return nil
}
