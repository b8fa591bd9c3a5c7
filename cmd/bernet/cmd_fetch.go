package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bernet/internal/builder"
	"bernet/internal/format"
	"bernet/internal/logging"
)

var fetchFlags struct {
	manifest string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch FILE|zoo:NAME",
	Short: "Download the model's weight archive into the cache and verify its checksum",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.manifest, "manifest", "", "Bind the verified archive against this tensor manifest")
}

func runFetch(cmd *cobra.Command, args []string) error {
	m, _, err := loadModel(args[0])
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), args[0], err)
	}
	if m.DataURL == "" {
		return fmt.Errorf("%s: model %q has no data_url", args[0], m.Name)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := newFetcher(st)
	if err != nil {
		return err
	}
	opts := []builder.Option{builder.WithFetcher(f), builder.WithLogger(logging.New("builder"))}
	if fetchFlags.manifest != "" {
		opts = append(opts, builder.WithIndexOpener(builder.ManifestOpener(fetchFlags.manifest)))
	}
	b, err := builder.New(opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := b.Build(cmd.Context(), m)
	if err != nil {
		return reportFailure(cmd.ErrOrStderr(), m.Name, err)
	}

	out := cmd.OutOrStdout()
	a := n.Archive
	state := "downloaded"
	if a.Cached {
		state = "cached"
	}
	fmt.Fprintf(out, "Model:   %s\n", m.Name)
	fmt.Fprintf(out, "Archive: %s (%s, %s)\n", a.Path, format.FmtBytes(a.Size), state)
	fmt.Fprintf(out, "SHA-256: %s %s\n", a.SHA256, format.BoolMark(true))
	if n.Bound {
		fmt.Fprintf(out, "Bound:   %d tensors\n", len(n.Bindings))
	}
	fmt.Fprintf(out, "Took:    %s\n", format.FmtDuration(time.Since(start)))
	return nil
}
