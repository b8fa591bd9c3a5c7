// bernet loads, validates and inspects network model documents.
//
// Usage:
//
//	bernet validate FILE...
//	bernet summary FILE|zoo:NAME [--markdown]
//	bernet plan FILE|zoo:NAME [--manifest M]
//	bernet fetch FILE|zoo:NAME
//	bernet export FILE|zoo:NAME [--json]
//	bernet zoo
//	bernet import FILE|zoo:NAME
//	bernet list
//	bernet rm NAME
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bernet/internal/config"
	"bernet/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
	home      string
	db        string
}

// cfg is resolved before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bernet",
	Short: "Load and validate network model documents",
	Long: "bernet reads tagged YAML network descriptions, checks them against the\n" +
		"layer schema, infers every tensor shape and verifies weight archives.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (env "+config.EnvLogLevel+")")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (env "+config.EnvLogFormat+")")
	pf.StringVar(&rootFlags.home, "home", "", "State directory (env "+config.EnvHome+", default ~/.bernet)")
	pf.StringVar(&rootFlags.db, "db", "", "Catalog DB path (env "+config.EnvDB+", default <home>/bernet.db)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(zooCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(rootFlags.home, os.Getenv)
	if err != nil {
		return err
	}
	if rootFlags.db != "" {
		c.DBPath = rootFlags.db
	}
	if rootFlags.logLevel != "" {
		c.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		c.LogFormat = rootFlags.logFormat
	}
	if err := c.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logging.Init(level, c.LogFormat, cmd.ErrOrStderr())
	cfg = c
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
