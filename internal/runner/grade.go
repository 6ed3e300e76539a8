package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sempr/studenttester-go/internal/compiler"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

// GradeOptions controls the stages of a full grading invocation.
type GradeOptions struct {
	// Compiler builds the sources before testing; nil skips compilation.
	Compiler       *compiler.Runner
	CompileOptions string
	OutDir         string
	NoCompile      bool
	NoTests        bool
	// Out additionally receives the report as it is produced.
	Out io.Writer
}

// Outcome is everything a grading invocation produced.
type Outcome struct {
	// Overall is nil when the tests did not run to completion.
	Overall *models.OverallResult
	// Output is the full human-readable text.
	Output string
	// Err is the failure that stopped testing. It is already described in
	// Output.
	Err         error
	Sources     []string
	TestSources []string
	Reaped      []string
	Elapsed     time.Duration
}

// Grade compiles and tests a submission the way the grade command does. It
// returns an error only if grading could not start at all; failures after
// that are reported in the Outcome.
func (o *Orchestrator) Grade(ctx context.Context, in Input, opts GradeOptions) (*Outcome, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()
	start := time.Now()

	out := &Outcome{}
	var buf bytes.Buffer
	w := io.Writer(&buf)
	if opts.Out != nil {
		w = io.MultiWriter(&buf, opts.Out)
	}
	defer func() {
		out.Output = buf.String()
		out.Elapsed = time.Since(start)
		slog.Info("grading finished", "elapsed", out.Elapsed, "err", out.Err)
	}()

	fmt.Fprint(w, "TEST RESULTS\n\n")
	if opts.NoTests {
		fmt.Fprintln(w, "Nothing to run.")
		return out, nil
	}

	l, err := o.scan(in)
	if err != nil {
		return nil, err
	}
	out.Sources = abs(in.ContentRoot, l.content)
	out.TestSources = abs(in.TestRoot, l.tests)

	if opts.Compiler != nil && !opts.NoCompile {
		c := *opts.Compiler
		c.Out = w
		req := compiler.Request{
			Sources: append(append([]string(nil), out.Sources...), out.TestSources...),
			Options: opts.CompileOptions,
			OutDir:  opts.OutDir,
		}
		if ok, err := c.Run(ctx, req, l.protected); !ok {
			out.Err = err
			return out, nil
		}
	}

	res, err := o.run(ctx, in, l)
	if res != nil {
		out.Reaped = res.Reaped
	}
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ConfigurationError) {
			return nil, err
		}
		out.Err = err
		fmt.Fprintln(w, abortMessage(err))
		return out, nil
	}
	out.Overall = res.Overall
	fmt.Fprint(w, res.Overall.Text)
	return out, nil
}

// abortMessage is what the report says for an error that stopped the run.
func abortMessage(err error) string {
	code := pkgerrors.GetCode(err)
	switch {
	case pkgerrors.Is(err, pkgerrors.SecurityViolation):
		code = pkgerrors.SecurityViolation
	case pkgerrors.Is(err, pkgerrors.EngineFailure):
		code = pkgerrors.EngineFailure
	case code != pkgerrors.CompilationFailure:
		code = pkgerrors.Internal
	}
	slog.Error("testing aborted", "code", code.String(), "err", err)
	return code.Message()
}

func abs(root string, rel []string) []string {
	out := make([]string, len(rel))
	base, err := filepath.Abs(root)
	if err != nil {
		base = root
	}
	for i, r := range rel {
		out[i] = filepath.Join(base, filepath.FromSlash(r))
	}
	return out
}
