// Package grader turns raw test outcomes into weighted grades and the
// human-readable report.
package grader

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sempr/studenttester-go/internal/api"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

type Options struct {
	// MuteOverall suppresses the overall grade line.
	MuteOverall bool
	// Incomplete marks that some test classes could not be loaded.
	Incomplete bool
}

// Percent is 100*passed/total, with an empty total counted as 1, clamped to
// [0, 100].
func Percent(passed, total int) float64 {
	if total <= 0 {
		total = 1
	}
	switch {
	case passed <= 0:
		return 0
	case passed >= total:
		return 100
	}
	return 100 * float64(passed) / float64(total)
}

// Aggregate grades every suite and folds them into the overall result.
// A clash of explicit suite identifiers fails the whole report.
func Aggregate(runs []SuiteRun, notes *api.Notebook, opts Options) (*models.OverallResult, error) {
	used := make(map[int]string, len(runs))
	next := 1
	suites := make([]models.SuiteResult, 0, len(runs))

	for _, run := range runs {
		id := run.Config.Identifier
		if id >= 0 {
			if other, clash := used[id]; clash {
				slog.Error("suite identifier clash", "suite", run.Name, "identifier", id, "other", other)
				return nil, pkgerrors.Wrapf(pkgerrors.New(pkgerrors.IdentifierClash), pkgerrors.ConfigurationError,
					"%s clashes with already existing identifier %d", run.Name, id).
					WithDetail("identifier", id)
			}
		} else {
			for {
				if _, taken := used[next]; !taken {
					break
				}
				next++
			}
			id = next
		}
		used[id] = run.Name
		next = id + 1

		suites = append(suites, gradeSuite(id, run, notes))
	}

	sort.SliceStable(suites, func(i, j int) bool { return suites[i].Identifier < suites[j].Identifier })

	overall := &models.OverallResult{Suites: suites, Incomplete: opts.Incomplete}
	var text strings.Builder
	for _, s := range suites {
		overall.PassedWeight += s.PassedWeight
		overall.TotalWeight += s.TotalWeight
		text.WriteString(s.Text)
	}
	overall.Percent = Percent(overall.PassedWeight, overall.TotalWeight)
	if opts.Incomplete {
		text.WriteString("\nWarning: some test classes could not be loaded, the grade may be incomplete.\n")
	}
	if !opts.MuteOverall {
		fmt.Fprintf(&text, "\nOverall grade: %.1f%%\n", overall.Percent)
	}
	overall.Text = text.String()
	return overall, nil
}

func gradeSuite(id int, run SuiteRun, notes *api.Notebook) models.SuiteResult {
	res := models.SuiteResult{
		Identifier:     id,
		Name:           run.Name,
		Mode:           run.Config.Mode,
		WelcomeMessage: run.Config.WelcomeMessage,
	}

	var text strings.Builder
	text.WriteString(header(run))

	var diagnostics []string
	for _, status := range []models.Status{models.Passed, models.Failed, models.Skipped} {
		for _, o := range run.Outcomes {
			if o.Status != status {
				continue
			}
			meta := models.DefaultGradeable()
			if o.Meta != nil {
				meta = *o.Meta
			}
			res.TotalWeight += meta.Units()
			switch status {
			case models.Passed:
				res.PassedWeight += meta.Units()
				res.Passed++
			case models.Failed:
				res.Failed++
			case models.Skipped:
				res.Skipped++
			}
			res.Outcomes = append(res.Outcomes, o)
			text.WriteString(renderTest(run.Config.Mode, o, meta, notes.Public(run.Unit, o.TestID)))
			diagnostics = append(diagnostics, diagnose(o, notes.Private(run.Unit, o.TestID))...)
		}
	}

	res.Percent = Percent(res.PassedWeight, res.TotalWeight)
	text.WriteString(summary(res))
	res.Text = text.String()
	res.Diagnostics = strings.Join(diagnostics, "\n")
	return res
}
