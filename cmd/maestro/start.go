package main

import (
	"github.com/spf13/cobra"

	"github.com/signalfx/maestro-go/internal/orchestrate"
)

var startCmd = &cobra.Command{
	Use:   "start [target...]",
	Short: "create and start every matching instance, in dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(args, orchestrate.ActionStart)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
