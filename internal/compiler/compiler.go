// Package compiler drives an external toolchain over the submission and test
// sources and reports its diagnostics.
package compiler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

// Request is one compiler invocation.
type Request struct {
	Sources []string
	// Options is the extra compiler flags as a single shell-quoted string.
	Options string
	OutDir  string
}

type Result struct {
	Success     bool
	Diagnostics []Diagnostic
	Output      string
}

// Toolchain compiles sources.
type Toolchain interface {
	Compile(ctx context.Context, req Request) (*Result, error)
}

// ErrNoCompiler means the toolchain binary could not be started.
var ErrNoCompiler = errors.New("compiler not available")

// ExecToolchain runs an external compiler binary. Args may contain the
// placeholders {sources}, {options} and {out}.
type ExecToolchain struct {
	Command string
	Args    []string
	Dir     string
}

func (t *ExecToolchain) Compile(ctx context.Context, req Request) (*Result, error) {
	opts, err := shlex.Split(req.Options)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not split compiler options %q", req.Options)
	}
	args := expandArgs(t.Args, req.Sources, opts, req.OutDir)
	slog.Debug("compiling", "command", t.Command, "args", args)

	cmd := exec.CommandContext(ctx, t.Command, args...)
	cmd.Dir = t.Dir
	out, err := cmd.CombinedOutput()
	res := &Result{Output: string(out), Diagnostics: ParseDiagnostics(string(out))}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrNoCompiler, err)
		}
		return res, nil
	}
	res.Success = true
	return res, nil
}

func expandArgs(tmpl []string, sources, opts []string, outDir string) []string {
	var args []string
	placedOpts := false
	for _, a := range tmpl {
		switch a {
		case "{sources}":
			if !placedOpts {
				args = append(args, opts...)
				placedOpts = true
			}
			args = append(args, sources...)
		case "{options}":
			args = append(args, opts...)
			placedOpts = true
		default:
			args = append(args, strings.ReplaceAll(a, "{out}", outDir))
		}
	}
	return args
}

// Runner compiles a batch and prints the compile report.
type Runner struct {
	Toolchain Toolchain
	// Separately compiles each source on its own so one broken file does not
	// hide the others.
	Separately bool
	Out        io.Writer
}

// Run compiles sources. Diagnostics in files named in protected (the test
// suite) are reported without their source line. It returns false, with a
// CompilationFailure error, when nothing could be compiled.
func (r *Runner) Run(ctx context.Context, req Request, protected []string) (bool, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	if len(req.Sources) == 0 {
		fmt.Fprintln(out, "Compilation failed.")
		return false, pkgerrors.New(pkgerrors.CompilationFailure).WithMessage("Nothing to compile.")
	}

	batches := [][]string{req.Sources}
	if r.Separately {
		batches = batches[:0]
		for _, s := range req.Sources {
			batches = append(batches, []string{s})
		}
	}

	var diags []Diagnostic
	anySuccess := false
	for _, batch := range batches {
		res, err := r.Toolchain.Compile(ctx, Request{Sources: batch, Options: req.Options, OutDir: req.OutDir})
		if err != nil {
			if errors.Is(err, ErrNoCompiler) {
				fmt.Fprintln(out, "Couldn't get the compiler, testing cannot continue.")
			}
			fmt.Fprintln(out, "Compilation failed.")
			return false, pkgerrors.Wrap(err, pkgerrors.CompilationFailure)
		}
		slog.Debug("compiled batch", "sources", batch, "success", res.Success)
		if res.Success {
			anySuccess = true
		}
		diags = append(diags, res.Diagnostics...)
	}

	switch {
	case anySuccess && len(diags) > 0:
		fmt.Fprintln(out, "Compilation succeeded partially.")
		r.report(out, diags, protected)
		return true, nil
	case anySuccess:
		fmt.Fprintln(out, "Compilation succeeded.")
		fmt.Fprintln(out)
		return true, nil
	default:
		fmt.Fprintln(out, "Compilation failed.")
		r.report(out, diags, protected)
		e := pkgerrors.New(pkgerrors.CompilationFailure)
		if len(diags) > 0 {
			e.WithDetail("file", diags[0].File).WithDetail("line", diags[0].Line)
		}
		return false, e
	}
}

// report prints one diagnostic per code; repeats are only logged.
func (r *Runner) report(out io.Writer, diags []Diagnostic, protected []string) {
	hidden := make(map[string]bool, len(protected))
	for _, p := range protected {
		hidden[filepath.Base(p)] = true
	}
	seen := make(map[string]bool)
	skipped := false
	for _, d := range diags {
		if seen[d.Code] {
			slog.Debug("skipping already reported error", "code", d.Code, "line", d.Line)
			skipped = true
			continue
		}
		seen[d.Code] = true

		name := filepath.Base(d.File)
		if hidden[name] {
			slog.Debug("error in test file, not showing its source", "file", d.File)
			fmt.Fprintf(out, "Error on line %d in %s: %s\n", d.Line, name, d.Message)
		} else {
			fmt.Fprintf(out, "Error on line %d in %s: %s\n", d.Line, d.File, d.Message)
			if src := sourceLine(d.File, d.Line); src != "" {
				fmt.Fprintf(out, "%s\n", src)
				if d.Column > 0 {
					fmt.Fprintf(out, "%s^\n", caretPad(src, d.Column))
				}
			}
		}
		if h := Hint(d); h != "" {
			fmt.Fprintln(out, h)
		}
	}
	if skipped {
		fmt.Fprintln(out, "Skipped some errors of the same type. "+
			"Try fixing the ones mentioned above first and check if the problem persists.")
	}
	fmt.Fprintln(out)
}

func sourceLine(path string, line int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		if n == line {
			return strings.TrimRight(sc.Text(), "\r")
		}
	}
	return ""
}

// caretPad keeps tabs so the caret lines up under the reported column.
func caretPad(src string, col int) string {
	var b strings.Builder
	for i, r := range src {
		if i >= col-1 {
			break
		}
		if r == '\t' {
			b.WriteRune('\t')
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
