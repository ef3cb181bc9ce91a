package main

import (
	"github.com/spf13/cobra"

	"github.com/signalfx/maestro-go/internal/orchestrate"
)

var stopCmd = &cobra.Command{
	Use:   "stop [target...]",
	Short: "stop every matching instance, in reverse dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(args, orchestrate.ActionStop)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
