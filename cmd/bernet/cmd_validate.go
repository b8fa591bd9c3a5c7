package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"bernet/internal/builder"
	"bernet/internal/format"
	"bernet/internal/logging"
)

var validateFlags struct {
	jobs int
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check model documents against the schema, references and shapes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().IntVarP(&validateFlags.jobs, "jobs", "j", runtime.NumCPU(), "Documents checked in parallel")
}

func runValidate(cmd *cobra.Command, args []string) error {
	b, err := builder.New(builder.WithLogger(logging.New("validate")))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range b.CheckAll(cmd.Context(), args, validateFlags.jobs) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n", r.Path)
			printViolations(out, "  ", r.Err)
			continue
		}
		n := r.Network
		fmt.Fprintf(out, "ok   %s (%s: %d layers, %s params)\n",
			r.Path, n.Model.Name, len(n.Model.Layers), format.FmtCount(int64(n.ParamCount())))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents invalid", failed, len(args))
	}
	return nil
}
