// Command maestro drives declarative multi-host container orchestration
// from a YAML environment description: status, start, stop, restart, clean,
// and logs, dispatched through a cobra command tree in place of the
// teacher's bare per-command flag.FlagSet dispatch, while each subcommand
// still parses its own flags locally the same way the teacher's commands
// did.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile       string
	ignoreOrder   bool
	refresh       bool
	concurrency   int
	verbose       bool
	stopOnFailure bool

	rootCmd = &cobra.Command{
		Use:           "maestro",
		Short:         "declarative multi-host container orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "file", "f", "./maestro.yaml", "environment description file")
	rootCmd.PersistentFlags().BoolVarP(&ignoreOrder, "ignore-order", "o", false, "ignore dependency ordering and closure expansion")
	rootCmd.PersistentFlags().BoolVarP(&refresh, "refresh", "r", false, "force image refresh")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 1, "concurrent operations per ship")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose per-target output")
	rootCmd.PersistentFlags().BoolVar(&stopOnFailure, "stop-on-failure", false, "abort the run after the first level containing a failure")
}
