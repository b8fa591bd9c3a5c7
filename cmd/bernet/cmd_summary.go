package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bernet/internal/format"
)

var summaryFlags struct {
	markdown bool
}

var summaryCmd = &cobra.Command{
	Use:   "summary FILE|zoo:NAME",
	Short: "Show every layer with its source, output shape and parameter count",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryFlags.markdown, "markdown", false, "Render as a Markdown table")
}

func runSummary(cmd *cobra.Command, args []string) error {
	n, _, err := planModel(args[0])
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), args[0], err)
	}

	tb := format.NewTable(format.ModeFor(summaryFlags.markdown))
	tb.Title(n.Model.Name)
	tb.Header("#", "Layer", "Kind", "Source", "Output", "Params")
	for _, node := range n.Graph.Nodes() {
		ls := n.Shapes[node.Name()]
		src := node.Source
		if src == "" {
			src = "-"
		}
		tb.Row(node.Index, node.Name(), node.Layer.Kind(), src, format.FmtShape(ls.Output), ls.ParamCount())
	}
	tb.Footer("", "", "", "", "TOTAL", n.ParamCount())
	tb.Columns(
		format.ColumnConfig{Number: 1, Align: format.AlignRight},
		format.ColumnConfig{Number: 6, Align: format.AlignRight},
	)
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}
