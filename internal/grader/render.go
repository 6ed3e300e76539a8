package grader

import (
	"fmt"
	"strings"

	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/models"
)

// end date of a suite in the report header; graders' tooling parses it
const endDateLayout = "Mon Jan 02 15:04:05 MST 2006"

const exitHint = "\tWarning: It seems that os.Exit() is used in the code. " +
	"Please remove it to prevent the tester from working abnormally.\n"

func header(run SuiteRun) string {
	var b strings.Builder
	b.WriteString("\n ---")
	fmt.Fprintf(&b, "\n%s\n%s\n", run.Name, run.End.Format(endDateLayout))
	if run.Config.WelcomeMessage != "" {
		fmt.Fprintf(&b, "%s\n", run.Config.WelcomeMessage)
	}
	b.WriteString(" ---\n")
	return b.String()
}

func summary(res models.SuiteResult) string {
	if res.Mode == models.Muted {
		return "Unit tests were run, but no output will be shown.\n"
	}
	return fmt.Sprintf("\nPassed unit tests: %d/%d\n"+
		"Failed unit tests: %d\n"+
		"Skipped unit tests: %d\n"+
		"Grade: %.1f%%\n",
		res.Passed, res.Passed+res.Failed+res.Skipped, res.Failed, res.Skipped, res.Percent)
}

func plural(n int64) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func renderTest(mode models.ReportMode, o models.TestOutcome, meta models.Gradeable, public []string) string {
	if mode == models.Muted || mode == models.Anonymous {
		return ""
	}
	verbose := mode == models.Verbose || mode == models.MaxVerbose
	ms := o.Duration().Milliseconds()
	weight := int64(meta.Units())

	var b strings.Builder
	switch o.Status {
	case models.Passed:
		fmt.Fprintf(&b, "SUCCESS: %s\n\t%d msec%s, weight: %d unit%s\n", o.TestID, ms, plural(ms), weight, plural(weight))
		if verbose && meta.Description != "" {
			fmt.Fprintf(&b, "\tDescription: %s\n", meta.Description)
		}
	case models.Failed:
		fmt.Fprintf(&b, "FAILURE: %s\n\t%d msec%s, weight: %d unit%s\n", o.TestID, ms, plural(ms), weight, plural(weight))
		if verbose && meta.Description != "" {
			fmt.Fprintf(&b, "\tDescription: %s\n", meta.Description)
		}
		if th := o.Thrown; th != nil {
			fmt.Fprintf(&b, "\tException type: %s\n", th.Type)
			if (meta.PrintExceptionMessage || verbose) && th.Message != "" {
				fmt.Fprintf(&b, "\tDetailed information:  %s\n", th.Message)
			}
			if isExitViolation(th) {
				b.WriteString(exitHint)
			}
			if (meta.PrintStackTrace || mode == models.MaxVerbose) && th.Stack != "" {
				fmt.Fprintf(&b, "\tStack trace:  %s\n", th.Stack)
			}
		}
	case models.Skipped:
		fmt.Fprintf(&b, "SKIPPED: %s\n\tWeight: %d unit%s\n", o.TestID, weight, plural(weight))
		if verbose && meta.Description != "" {
			fmt.Fprintf(&b, "\tDescription: %s\n", meta.Description)
		}
		if o.Thrown != nil {
			fmt.Fprintf(&b, "\tTest skipped because:  %s\n", o.Thrown)
		}
		if len(o.DependsOn) > 0 {
			fmt.Fprintf(&b, "\tThis unit test depends on tests: %s\n", strings.Join(o.DependsOn, ", "))
		}
	}
	if len(public) > 0 {
		fmt.Fprintf(&b, "\tNotes on %s:\n\t - %s\n", o.TestID, strings.Join(public, "\n\t - "))
	}
	return b.String()
}

func isExitViolation(th *models.Thrown) bool {
	return th.Policy == string(sandbox.DisableTerminate) || strings.HasSuffix(th.Message, sandbox.ExitMessage)
}

// diagnose lists the machine-only lines for an outcome.
func diagnose(o models.TestOutcome, private []string) []string {
	var lines []string
	if o.Status != models.Passed && o.Thrown != nil {
		lines = append(lines, fmt.Sprintf("FAILURE: %s (%s)", o.TestID, o.Thrown))
	}
	if o.Status == models.Failed && o.Thrown != nil && o.Thrown.Stack != "" {
		lines = append(lines, fmt.Sprintf("\tStack trace of %s:  %s", o.TestID, o.Thrown.Stack))
	}
	if len(private) > 0 {
		lines = append(lines, fmt.Sprintf("\tNotes on %s:\n\t - %s\n", o.TestID, strings.Join(private, "\n\t - ")))
	}
	return lines
}
