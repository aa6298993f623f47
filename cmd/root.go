// Package cmd wires the indexer CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexer",
		Short: "Incremental journal-article catalog indexer.",
		Long: `indexer crawls external journal catalogs into local SQLite indexes.
Each catalog CSV becomes one database; crawls are resumable at year
granularity and incremental update runs emit a change manifest for the
downstream notifier.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newIndexCmd())
	return cmd
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
