package main

import (
	"github.com/spf13/cobra"

	"github.com/signalfx/maestro-go/internal/orchestrate"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [target...]",
	Short: "stop and remove every matching instance's container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(args, orchestrate.ActionClean)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
