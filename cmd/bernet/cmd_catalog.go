package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bernet/internal/format"
	"bernet/internal/store"
	"bernet/internal/zoo"
)

var zooCmd = &cobra.Command{
	Use:   "zoo",
	Short: "List the model documents built into bernet",
	Args:  cobra.NoArgs,
	RunE:  runZoo,
}

var importFlags struct {
	name string
}

var importCmd = &cobra.Command{
	Use:   "import FILE|zoo:NAME",
	Short: "Validate a model document and save it to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var listFlags struct {
	markdown bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued models",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a model from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	importCmd.Flags().StringVar(&importFlags.name, "name", "", "Catalog name (default: the document's name)")
	listCmd.Flags().BoolVar(&listFlags.markdown, "markdown", false, "Render as a Markdown table")
}

func runZoo(cmd *cobra.Command, _ []string) error {
	tb := format.NewTable(format.ASCII)
	tb.Header("Reference", "Layers", "Description")
	for _, name := range zoo.List() {
		m, err := zoo.Load(name)
		if err != nil {
			return err
		}
		tb.Row(zoo.Prefix+name, len(m.Layers), format.Truncate(strings.Join(strings.Fields(m.Description), " "), 60))
	}
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	n, data, err := planModel(args[0])
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), args[0], err)
	}
	name := importFlags.name
	if name == "" {
		name = n.Model.Name
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec := &store.Model{
		Name:        name,
		Description: n.Model.Description,
		DataURL:     n.Model.DataURL,
		DataSHA256:  n.Model.DataSHA256,
		Layers:      len(n.Model.Layers),
		Params:      int64(n.ParamCount()),
		Source:      data,
	}
	if err := st.SaveModel(rec); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d layers, %s params)\n", name, rec.Layers, format.FmtCount(rec.Params))
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	models, err := st.ListModels()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintln(out, "No models in the catalog. Run 'bernet import FILE' to add one.")
		return nil
	}

	tb := format.NewTable(format.ModeFor(listFlags.markdown))
	tb.Header("Name", "Layers", "Params", "Weights", "Verified", "Updated")
	for _, m := range models {
		weights, verified := "-", "-"
		if m.DataURL != "" {
			weights = format.Truncate(m.DataURL, 48)
			if verified, err = lastVerified(st, m.DataSHA256); err != nil {
				return err
			}
		}
		tb.Row(m.Name, m.Layers, format.FmtCount(m.Params), weights, verified, m.UpdatedAt)
	}
	fmt.Fprintln(out, tb.String())
	return nil
}

// lastVerified reports when the archive with digest sum last passed the
// checksum gate, or "never".
func lastVerified(st store.Store, sum string) (string, error) {
	if sum == "" {
		return "never", nil
	}
	f, err := st.LastFetch(strings.ToLower(sum))
	if err != nil {
		return "", err
	}
	if f == nil {
		return "never", nil
	}
	return f.VerifiedAt, nil
}

func runRm(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}
