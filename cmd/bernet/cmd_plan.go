package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bernet/internal/format"
	"bernet/pkg/netdef"
)

var planFlags struct {
	manifest string
	markdown bool
}

var planCmd = &cobra.Command{
	Use:   "plan FILE|zoo:NAME",
	Short: "List the parameter tensors the model expects from its weight archive",
	Long: "plan lists every weight and bias reference with the shape the layer expects.\n" +
		"With --manifest, each tensor is also checked against a YAML manifest\n" +
		"(tensors: {name: [dims]}) describing the archive.",
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planFlags.manifest, "manifest", "", "Tensor manifest to check against")
	f.BoolVar(&planFlags.markdown, "markdown", false, "Render as a Markdown table")
}

func runPlan(cmd *cobra.Command, args []string) error {
	n, _, err := planModel(args[0])
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), args[0], err)
	}

	var idx netdef.MapIndex
	if planFlags.manifest != "" {
		if idx, err = netdef.LoadManifest(planFlags.manifest); err != nil {
			return err
		}
	}

	tb := format.NewTable(format.ModeFor(planFlags.markdown))
	tb.Title(n.Model.Name + " parameters")
	header := []string{"Layer", "Role", "Tensor", "Shape", "Size"}
	if idx != nil {
		header = append(header, "Archive", "OK")
	}
	tb.Header(header...)
	for _, b := range n.Bindings {
		row := []any{b.Layer, b.Role, b.Name, format.FmtShape(b.Shape), b.Shape.Size()}
		if idx != nil {
			got, ok := idx.Lookup(b.Name)
			row = append(row, format.FmtShape(got), format.BoolMark(ok && got.Equal(b.Shape)))
		}
		tb.Row(row...)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())

	if idx != nil {
		if _, err := netdef.Bind(n.Graph, n.Shapes, idx); err != nil {
			return reportFailure(cmd.ErrOrStderr(), planFlags.manifest, err)
		}
	}
	return nil
}
