/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/sempr/studenttester-go/internal/compiler"
	"github.com/spf13/cobra"
)

// hintsCmd represents the hints command
var hintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "List the compiler diagnostics that get a hint",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, code := range compiler.HintCodes() {
			fmt.Fprintf(out, "%-18s %s\n", code, compiler.Hint(compiler.Diagnostic{Code: code}))
		}
	},
}

func init() {
	rootCmd.AddCommand(hintsCmd)
}
