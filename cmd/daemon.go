/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/sempr/studenttester-go/internal/daemon"
	"github.com/sempr/studenttester-go/pkg/models"
	"github.com/spf13/cobra"
)

var daemonArgs models.DaemonArgs

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Grade queued submissions in the background",
	Long: `daemon reads etc/judge.conf under --home, detaches (unless --debug) and
polls Redis or MySQL for grading jobs. Each job is graded by running this
binary's grade command in a resource-limited child process; the JSON
report is stored back into Redis or the submission table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemon.Main(daemonArgs)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonArgs.Home, "home", "/home/judge", "grading home, holds etc/judge.conf")
	daemonCmd.Flags().BoolVar(&daemonArgs.Debug, "debug", false, "stay in the foreground and log text to stderr")
	daemonCmd.Flags().BoolVar(&daemonArgs.Once, "once", false, "grade the available jobs once and exit")
	daemonCmd.Flags().StringVar(&daemonArgs.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
}
