package main

import (
	"github.com/spf13/cobra"

	"github.com/signalfx/maestro-go/internal/orchestrate"
)

var restartCmd = &cobra.Command{
	Use:   "restart [target...]",
	Short: "stop then start every matching instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(args, orchestrate.ActionRestart)
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
