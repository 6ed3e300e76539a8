// Package runner is the test execution orchestrator: it finds the runnable
// test classes, installs the sandbox around a single engine run and grades
// what the engine reports.
package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sempr/studenttester-go/internal/api"
	"github.com/sempr/studenttester-go/internal/capture"
	"github.com/sempr/studenttester-go/internal/config"
	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/internal/grader"
	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/constants"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

// DefaultSuiteFiles are looked up in the test root when no suite file is
// given.
var DefaultSuiteFiles = []string{"suite.yaml", "suite.yml", "suite.toml"}

// Input names the folders of one grading run.
type Input struct {
	TestRoot    string
	ContentRoot string
	// SuiteFile optionally selects and configures the test classes.
	SuiteFile string
}

type Options struct {
	// Loader resolves code units; nil means engine.Default.
	Loader engine.Loader
	// Policies installed for the run; nil means sandbox.DefaultPolicies.
	Policies       []sandbox.PolicyKind
	DefaultTimeout time.Duration
	// NoMute sends code output to stderr instead of discarding it.
	NoMute       bool
	MuteOverall  bool
	SourceExts   []string
	ArtifactExts []string
	// Stdout is the capture used for the run; nil means a fresh one.
	Stdout *capture.Stdout
}

type Orchestrator struct {
	opts  Options
	state *sandbox.State
}

func New(opts Options) *Orchestrator {
	if opts.Loader == nil {
		opts.Loader = engine.Default
	}
	if opts.Policies == nil {
		opts.Policies = sandbox.DefaultPolicies()
	}
	if len(opts.SourceExts) == 0 {
		opts.SourceExts = config.DefaultHarness().Run.SourceExts
	}
	if opts.Stdout == nil {
		opts.Stdout = capture.New()
	}
	return &Orchestrator{opts: opts, state: sandbox.New()}
}

// Sandbox returns the sandbox the orchestrator installs for its runs.
func (o *Orchestrator) Sandbox() *sandbox.State { return o.state }

// layout is what discovery found under the two roots.
type layout struct {
	tests     []string
	content   []string
	protected []string
}

func (o *Orchestrator) scan(in Input) (*layout, error) {
	if err := requireDir("test root", in.TestRoot); err != nil {
		return nil, err
	}
	if err := requireDir("content root", in.ContentRoot); err != nil {
		return nil, err
	}
	tests, err := Discover(in.TestRoot, o.opts.SourceExts)
	if err != nil {
		return nil, err
	}
	content, err := Discover(in.ContentRoot, o.opts.SourceExts)
	if err != nil {
		return nil, err
	}
	return &layout{tests: tests, content: content, protected: ProtectedNames(tests, o.opts.ArtifactExts)}, nil
}

// Run executes the test classes found under in.TestRoot against the
// submission under in.ContentRoot and grades them. Only one run may be
// active per process.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*RunResult, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()
	l, err := o.scan(in)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, in, l)
}

// RunResult is the graded run plus what the orchestrator set up and cleaned
// up for it.
type RunResult struct {
	Overall   *models.OverallResult
	Blacklist []sandbox.CodeUnit
	Protected []string
	// Reaped lists the workers that were still alive after the engine
	// returned.
	Reaped []string
}

func (o *Orchestrator) run(ctx context.Context, in Input, l *layout) (*RunResult, error) {
	res := &RunResult{Protected: l.protected}

	for _, f := range l.content {
		unit := UnitName(f)
		if err := o.opts.Loader.Load(unit); err != nil {
			slog.Warn("could not load submission unit", "unit", unit, "file", f, "err", err)
			continue
		}
		res.Blacklist = append(res.Blacklist, unit)
	}

	suites, incomplete, err := o.candidates(in, l)
	if err != nil {
		return nil, err
	}

	notes := api.NewNotebook()
	collector := grader.NewCollector()
	mute := &MuteListener{Out: o.opts.Stdout}
	if o.opts.NoMute {
		mute.To = os.Stderr
	}

	eng := engine.New()
	eng.UseDefaultListeners = false
	eng.DefaultTimeout = o.opts.DefaultTimeout
	eng.AddListener(collector)
	eng.AddListener(mute)

	runErr := o.execute(ctx, eng, suites, notes, res)
	if len(res.Reaped) > 0 {
		slog.Warn("stuck workers abandoned", "count", len(res.Reaped), "workers", res.Reaped)
	}
	if runErr != nil {
		return nil, runErr
	}

	overall, err := grader.Aggregate(collector.Runs(), notes, grader.Options{
		MuteOverall: o.opts.MuteOverall,
		Incomplete:  incomplete,
	})
	if err != nil {
		return nil, err
	}
	res.Overall = overall
	return res, nil
}

// execute installs the sandbox and the capture, runs the engine once, reaps
// the workers left behind and always puts both back.
func (o *Orchestrator) execute(ctx context.Context, eng *engine.Engine, suites []*engine.Suite, notes *api.Notebook, res *RunResult) (err error) {
	if err := o.opts.Stdout.Start(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.Internal)
	}
	defer func() {
		// stuck workers are cut off while the sandbox still guards them
		res.Reaped = eng.Workers.Reap(constants.WorkerPrefix)
		o.state.Uninstall()
		if rerr := o.opts.Stdout.Restore(); rerr != nil {
			slog.Error("could not restore stdout", "err", rerr)
			if err == nil {
				err = pkgerrors.Wrap(rerr, pkgerrors.Internal)
			}
		}
	}()

	// stdout belongs to the report; submission output outside test bodies
	// goes where muted output goes
	base := io.Writer(io.Discard)
	if o.opts.NoMute {
		base = os.Stderr
	}
	if err := o.opts.Stdout.Redirect(base); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.Internal)
	}
	if err := o.state.Install(res.Blacklist, o.opts.Policies, res.Protected); err != nil {
		return err
	}
	slog.Info("sandbox installed", "blacklist", res.Blacklist, "policies", o.opts.Policies, "protected", res.Protected)

	ctx = sandbox.WithState(ctx, o.state)
	ctx = api.WithNotebook(ctx, notes)
	start := time.Now()
	err = eng.Run(ctx, suites)
	slog.Info("engine finished", "suites", len(suites), "elapsed", time.Since(start), "err", err)
	return err
}

// candidates resolves the test classes to run, from the suite document when
// there is one, else from every unit under the test root.
func (o *Orchestrator) candidates(in Input, l *layout) ([]*engine.Suite, bool, error) {
	suiteFile := in.SuiteFile
	if suiteFile == "" {
		for _, name := range DefaultSuiteFiles {
			p := filepath.Join(in.TestRoot, name)
			if _, err := os.Stat(p); err == nil {
				suiteFile = p
				break
			}
		}
	}

	var entries []config.ClassEntry
	if suiteFile != "" {
		doc, err := config.LoadSuite(suiteFile)
		if err != nil {
			return nil, false, err
		}
		slog.Info("using suite file", "path", suiteFile, "classes", len(doc.Classes))
		entries = doc.Classes
	} else {
		for _, f := range l.tests {
			entries = append(entries, config.ClassEntry{Name: string(UnitName(f))})
		}
	}

	var suites []*engine.Suite
	incomplete := false
	for _, entry := range entries {
		unit := sandbox.CodeUnit(entry.Name)
		if err := o.opts.Loader.Load(unit); err != nil {
			slog.Error("could not load test class", "class", unit, "err", err)
			incomplete = true
			continue
		}
		c, err := o.opts.Loader.Lookup(unit)
		if err != nil {
			if errors.Is(err, engine.ErrClassNotFound) {
				slog.Debug("not a test class, skipping", "class", unit)
				continue
			}
			slog.Error("could not load test class", "class", unit, "err", err)
			incomplete = true
			continue
		}

		switch kind := c.Classify(); kind {
		case engine.ClassNotTest:
			slog.Debug("not a test class, skipping", "class", unit)
			continue
		case engine.ClassMixed:
			slog.Error("test class mixes JUnit and TestNG tests, skipping", "class", unit)
			continue
		}
		if err := c.Validate(); err != nil {
			slog.Error("could not load test class", "class", unit, "err", err)
			incomplete = true
			continue
		}
		suites = append(suites, engine.NewSuite(configured(c, entry)))
	}
	return suites, incomplete, nil
}

// configured returns a copy of c with the suite document entry applied.
func configured(c *engine.Class, entry config.ClassEntry) *engine.Class {
	if entry.Mode == "" && entry.WelcomeMessage == "" && entry.Identifier == nil && len(entry.Tests) == 0 {
		return c
	}
	out := *c
	declared := models.DefaultContextConfig()
	if c.Config != nil {
		declared = *c.Config
	}
	cfg := entry.Apply(declared)
	out.Config = &cfg

	out.Tests = make([]engine.Test, len(c.Tests))
	copy(out.Tests, c.Tests)
	for i := range out.Tests {
		if o, ok := entry.Tests[out.Tests[i].Name]; ok {
			g := o.Apply(out.Tests[i].Meta)
			out.Tests[i].Meta = &g
		}
	}
	return &out
}
