package main

import (
	"github.com/spf13/cobra"

	"github.com/signalfx/maestro-go/internal/orchestrate"
)

var statusCmd = &cobra.Command{
	Use:   "status [target...]",
	Short: "report the current state of every matching instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(args, orchestrate.ActionStatus)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
