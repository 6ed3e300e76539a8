/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/sempr/studenttester-go/internal/catalog"
	"github.com/sempr/studenttester-go/internal/compiler"
	"github.com/sempr/studenttester-go/internal/config"
	"github.com/sempr/studenttester-go/internal/report"
	"github.com/sempr/studenttester-go/internal/runner"
	"github.com/sempr/studenttester-go/pkg/constants"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
	"github.com/spf13/cobra"
)

var gradeArgs models.GradeArgs

// gradeCmd represents the grade command
var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Compile and test one submission",
	Long: `grade compiles the sources under --content-root with the tests under
--test-root, runs every registered test class found there inside the
sandbox and prints the report. With --json the report is a JSON document
on stdout (or in --json-file) and the human output is embedded in it.

--demo grades the built-in calculator example instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		if code := runGrade(cmd.Context(), gradeArgs, cmd.OutOrStdout()); code != constants.EXIT_OK {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(gradeCmd)

	gradeCmd.Flags().StringVar(&gradeArgs.TestRoot, "test-root", "", "directory with the test sources")
	gradeCmd.Flags().StringVar(&gradeArgs.ContentRoot, "content-root", "", "directory with the submission")
	gradeCmd.Flags().StringVar(&gradeArgs.TempRoot, "temp-root", "", "directory for compiler output")
	gradeCmd.Flags().StringVar(&gradeArgs.ConfigFile, "config", "", "harness configuration (TOML)")
	gradeCmd.Flags().StringVar(&gradeArgs.SuiteFile, "suite", "", "suite document (YAML or TOML), default suite.yaml in the test root")
	gradeCmd.Flags().BoolVar(&gradeArgs.JSONOutput, "json", false, "print the report as JSON")
	gradeCmd.Flags().StringVar(&gradeArgs.JSONFile, "json-file", "", "write the JSON report to this file instead of stdout")
	gradeCmd.Flags().BoolVar(&gradeArgs.NoMute, "nomute", false, "send submission output to stderr instead of discarding it")
	gradeCmd.Flags().BoolVar(&gradeArgs.NoCompile, "nocompile", false, "skip compilation")
	gradeCmd.Flags().BoolVar(&gradeArgs.NoTests, "notests", false, "skip testing")
	gradeCmd.Flags().StringVar(&gradeArgs.CompileOptions, "compile-options", "", "extra compiler flags, shell quoted")
	gradeCmd.Flags().BoolVarP(&gradeArgs.Quiet, "quiet", "q", false, "with --json, print nothing")
	gradeCmd.Flags().BoolVar(&gradeArgs.Demo, "demo", false, "grade the built-in example")
}

func runGrade(ctx context.Context, a models.GradeArgs, stdout io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := config.LoadHarness(a.ConfigFile)
	if err != nil {
		slog.Error("could not load harness config", "path", a.ConfigFile, "err", err)
		return constants.EXIT_CONFIG
	}
	timeout, err := h.Timeout()
	if err != nil {
		slog.Error("bad default timeout", "err", err)
		return constants.EXIT_CONFIG
	}
	policies, err := h.PolicyKinds()
	if err != nil {
		slog.Error("bad policy list", "err", err)
		return constants.EXIT_CONFIG
	}

	if a.Demo {
		dir, err := os.MkdirTemp("", "studenttester-demo-")
		if err != nil {
			slog.Error("could not create demo directory", "err", err)
			return constants.EXIT_INTERNAL
		}
		defer os.RemoveAll(dir)
		if a.TestRoot, a.ContentRoot, err = catalog.Materialize(dir); err != nil {
			slog.Error("could not write demo sources", "dir", dir, "err", err)
			return constants.EXIT_INTERNAL
		}
	}
	if a.Quiet && !a.JSONOutput {
		slog.Info("quiet ignored since json is not enabled")
		a.Quiet = false
	}

	o := runner.New(runner.Options{
		Policies:       policies,
		DefaultTimeout: timeout,
		NoMute:         a.NoMute,
		MuteOverall:    h.Run.MuteOverall,
		SourceExts:     h.Run.SourceExts,
		ArtifactExts:   h.Run.ArtifactExts,
	})
	opts := runner.GradeOptions{
		CompileOptions: h.Compiler.Options,
		OutDir:         h.Compiler.OutDir,
		NoCompile:      a.NoCompile,
		NoTests:        a.NoTests,
	}
	if a.CompileOptions != "" {
		opts.CompileOptions = a.CompileOptions
	}
	if a.TempRoot != "" {
		opts.OutDir = a.TempRoot
	}
	if h.Compiler.Command != "" {
		opts.Compiler = &compiler.Runner{
			Toolchain:  &compiler.ExecToolchain{Command: h.Compiler.Command, Args: h.Compiler.Args, Dir: a.ContentRoot},
			Separately: h.Compiler.Separately,
		}
	} else {
		slog.Debug("no compiler configured, testing registered classes directly")
	}
	if !a.JSONOutput {
		opts.Out = stdout
	}

	in := runner.Input{TestRoot: a.TestRoot, ContentRoot: a.ContentRoot, SuiteFile: a.SuiteFile}
	out, err := o.Grade(ctx, in, opts)
	if err != nil {
		slog.Error("grading could not start", "err", err)
		return exitCode(err)
	}
	if len(out.Reaped) > 0 {
		slog.Warn("stuck workers were abandoned", "workers", out.Reaped)
	}

	if a.JSONOutput && !a.Quiet {
		doc := report.Build(out.Overall, out.Output, out.Sources, out.TestSources)
		if a.JSONFile != "" {
			err = report.WriteJSONFile(a.JSONFile, doc)
		} else {
			err = report.WriteJSON(stdout, doc)
		}
		if err != nil {
			slog.Error("could not write report", "err", err)
			return constants.EXIT_INTERNAL
		}
	}
	if out.Err != nil && pkgerrors.GetCode(out.Err) == pkgerrors.Internal {
		return constants.EXIT_INTERNAL
	}
	return constants.EXIT_OK
}

func exitCode(err error) int {
	switch {
	case pkgerrors.Is(err, pkgerrors.AlreadyRunning):
		return constants.EXIT_BUSY
	case pkgerrors.Is(err, pkgerrors.ConfigurationError):
		return constants.EXIT_CONFIG
	default:
		return constants.EXIT_INTERNAL
	}
}
