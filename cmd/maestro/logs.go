package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs <instance>",
	Short: "stream a single instance's container logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := streamLogs(args[0], logsFollow); err != nil {
			return fmt.Errorf("logs %s: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "w", false, "stream logs as they are produced")
	rootCmd.AddCommand(logsCmd)
}
