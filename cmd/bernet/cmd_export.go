package main

import (
	"github.com/spf13/cobra"

	"bernet/pkg/netdef"
)

var exportFlags struct {
	json bool
}

var exportCmd = &cobra.Command{
	Use:   "export FILE|zoo:NAME",
	Short: "Print the normalized document with every default filled in",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportFlags.json, "json", false, "Emit JSON instead of tagged YAML")
}

func runExport(cmd *cobra.Command, args []string) error {
	m, _, err := loadModel(args[0])
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), args[0], err)
	}
	if exportFlags.json {
		return netdef.EncodeJSON(cmd.OutOrStdout(), m)
	}
	return netdef.Encode(cmd.OutOrStdout(), m)
}
