/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var verbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "studenttester",
	Short: "Compile, sandbox and grade student submissions",
	Long: `studenttester compiles a submission together with its test suite, runs the
tests inside an access-control sandbox that blocks process exit, file,
exec, reflection and network access from submission code, and prints a
weighted grade report as text or JSON.

The daemon subcommand pulls grading jobs from Redis or MySQL and grades
each one in a child process.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetVerbosity(verbosity)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log more, repeat for debug output")
}
