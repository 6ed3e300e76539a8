package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sempr/studenttester-go/internal/api"
	"github.com/sempr/studenttester-go/internal/compiler"
	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/internal/guard"
	"github.com/sempr/studenttester-go/internal/sandbox"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

const (
	calculator     sandbox.CodeUnit = "example.Calculator"
	calculatorTest sandbox.CodeUnit = "example.CalculatorTest"
)

// fixture lays out a test root and a content root with one file per unit.
type fixture struct {
	in       Input
	registry *engine.Registry
}

func newFixture(t *testing.T, tests ...*engine.Class) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		in: Input{
			TestRoot:    filepath.Join(dir, "test"),
			ContentRoot: filepath.Join(dir, "content"),
		},
		registry: engine.NewRegistry(),
	}
	if err := os.MkdirAll(f.in.TestRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	f.source(t, f.in.ContentRoot, calculator, "package example\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")
	f.registry.RegisterUnit(calculator)
	for _, c := range tests {
		f.source(t, f.in.TestRoot, c.Name, "package example\n")
		f.registry.Register(c)
	}
	return f
}

func (f *fixture) source(t *testing.T, root string, unit sandbox.CodeUnit, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(string(unit), ".", "/"))+".go")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) orchestrator(opts Options) *Orchestrator {
	opts.Loader = f.registry
	return New(opts)
}

// submission code, attributed to the calculator unit.
func add(a, b int) int { return a + b }

func quit(ctx context.Context) error {
	return guard.Exit(sandbox.Enter(ctx, calculator, "Quit"), 0)
}

func cheat(ctx context.Context, path string) ([]byte, error) {
	return guard.ReadFile(sandbox.Enter(ctx, calculator, "Cheat"), path)
}

func class(name sandbox.CodeUnit, tests ...engine.Test) *engine.Class {
	for i := range tests {
		if tests[i].Framework == 0 {
			tests[i].Framework = engine.JUnit
		}
	}
	return &engine.Class{Name: name, Tests: tests}
}

func TestScenarioSinglePassingTest(t *testing.T) {
	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testAdd", Func: func(t *engine.T) {
		if got := add(2, 3); got != 5 {
			t.Errorf("Add(2, 3) = %d", got)
		}
	}}))
	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Overall.Percent != 100 {
		t.Errorf("Percent = %v, want 100", res.Overall.Percent)
	}
	if len(res.Blacklist) != 1 || res.Blacklist[0] != calculator {
		t.Errorf("Blacklist = %v", res.Blacklist)
	}
	if !strings.Contains(res.Overall.Text, "SUCCESS: testAdd") {
		t.Errorf("text = %s", res.Overall.Text)
	}
}

type arithmeticError struct{ op string }

func (e *arithmeticError) Error() string { return "arithmetic: " + e.op }

func TestScenarioUncaughtError(t *testing.T) {
	f := newFixture(t, class(calculatorTest,
		engine.Test{Name: "testAdd", Func: func(t *engine.T) {}},
		engine.Test{Name: "testDivide", Func: func(t *engine.T) { panic(&arithmeticError{op: "/ by zero"}) }},
	))
	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Overall.Percent != 50 {
		t.Errorf("Percent = %v, want 50", res.Overall.Percent)
	}
	block := res.Overall.Text[strings.Index(res.Overall.Text, "FAILURE: testDivide"):]
	if !strings.Contains(block, "Exception type: *runner.arithmeticError") {
		t.Errorf("failure block = %s", block)
	}
}

func TestScenarioForbiddenExit(t *testing.T) {
	exited := false
	prev := guard.SetExitFunc(func(int) { exited = true })
	defer guard.SetExitFunc(prev)

	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testQuit", Func: func(t *engine.T) {
		if err := quit(t.Context()); err != nil {
			t.Fatal(err)
		}
	}}))
	o := f.orchestrator(Options{})
	res, err := o.Run(context.Background(), f.in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exited {
		t.Fatal("process exit was not intercepted")
	}
	outcome := res.Overall.Suites[0].Outcomes[0]
	if outcome.Status != models.Failed || outcome.Thrown == nil || outcome.Thrown.Policy != string(sandbox.DisableTerminate) {
		t.Fatalf("outcome = %+v thrown = %+v", outcome, outcome.Thrown)
	}
	if !strings.Contains(res.Overall.Text, "It seems that os.Exit() is used") {
		t.Errorf("exit hint missing:\n%s", res.Overall.Text)
	}
	if o.Sandbox().Installed() {
		t.Error("sandbox still installed after the run")
	}
}

type fakeToolchain struct {
	res *compiler.Result
	got [][]string
}

func (f *fakeToolchain) Compile(_ context.Context, req compiler.Request) (*compiler.Result, error) {
	f.got = append(f.got, req.Sources)
	return f.res, nil
}

func TestScenarioCompilationFailure(t *testing.T) {
	ran := false
	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testAdd", Func: func(t *engine.T) { ran = true }}))
	broken := f.source(t, f.in.ContentRoot, "example.Broken", "package example\n\nfunc Broken() {\n\treturn 1 +\n}\n")
	tc := &fakeToolchain{res: &compiler.Result{Diagnostics: []compiler.Diagnostic{
		{Code: "expected", File: broken, Line: 4, Column: 12, Message: "expected operand"},
	}}}

	out, err := f.orchestrator(Options{}).Grade(context.Background(), f.in, GradeOptions{
		Compiler: &compiler.Runner{Toolchain: tc},
	})
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if ran {
		t.Error("tests ran after a failed compilation")
	}
	if out.Overall != nil || !pkgerrors.Is(out.Err, pkgerrors.CompilationFailure) {
		t.Errorf("outcome = %+v", out)
	}
	for _, want := range []string{"TEST RESULTS\n\n", "Compilation failed.", "Error on line 4 in " + broken + ": expected operand", "\treturn 1 +"} {
		if !strings.Contains(out.Output, want) {
			t.Errorf("missing %q in:\n%s", want, out.Output)
		}
	}
	if len(tc.got) != 1 || len(tc.got[0]) != 3 {
		t.Errorf("compiled %v", tc.got)
	}
}

func TestProtectedResources(t *testing.T) {
	var testFile string
	f := newFixture(t, class(calculatorTest,
		engine.Test{Name: "testCheat", Func: func(t *engine.T) {
			if _, err := cheat(t.Context(), testFile); err != nil {
				t.Fatal(err)
			}
		}},
		engine.Test{Name: "testTrusted", Func: func(t *engine.T) {
			if _, err := guard.ReadFile(t.Context(), testFile); err != nil {
				t.Fatal(err)
			}
		}},
	))
	testFile = filepath.Join(f.in.TestRoot, "example", "CalculatorTest.go")

	res, err := f.orchestrator(Options{ArtifactExts: []string{".o"}}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"CalculatorTest.go", "CalculatorTest.o"}; fmt.Sprint(res.Protected) != fmt.Sprint(want) {
		t.Errorf("Protected = %v, want %v", res.Protected, want)
	}
	outs := res.Overall.Suites[0].Outcomes
	if outs[0].Status != models.Passed || outs[0].TestID != "testTrusted" {
		t.Errorf("trusted read: %+v", outs[0])
	}
	if outs[1].Thrown == nil || outs[1].Thrown.Policy != string(sandbox.DisableProtectedResourceAccess) {
		t.Errorf("cheating read: %+v", outs[1])
	}
}

func TestNotesAndSuiteFile(t *testing.T) {
	f := newFixture(t,
		class(calculatorTest, engine.Test{Name: "testAdd", Func: func(t *engine.T) {
			tester := api.From(t.Context())
			tester.LogPublic("adding")
			tester.LogPrivate("expected 5")
		}}),
		class("example.OtherTest", engine.Test{Name: "testIgnored", Func: func(t *engine.T) {}}),
	)
	suite := filepath.Join(f.in.TestRoot, "suite.yaml")
	os.WriteFile(suite, []byte("classes:\n  - name: example.CalculatorTest\n    mode: VERBOSE\n    identifier: 4\n    tests:\n      testAdd: {weight: 5, description: sums}\n  - name: example.Missing\n"), 0o644)

	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Overall.Suites) != 1 {
		t.Fatalf("suites = %+v", res.Overall.Suites)
	}
	s := res.Overall.Suites[0]
	if s.Identifier != 4 || s.Mode != models.Verbose || s.TotalWeight != 5 {
		t.Errorf("suite = %+v", s)
	}
	if !res.Overall.Incomplete {
		t.Error("missing class did not mark the run incomplete")
	}
	for _, want := range []string{"weight: 5 units", "\tDescription: sums\n", "\tNotes on testAdd:\n\t - adding\n"} {
		if !strings.Contains(res.Overall.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Overall.Text)
		}
	}
	if strings.Contains(res.Overall.Text, "expected 5") || !strings.Contains(s.Diagnostics, "expected 5") {
		t.Errorf("private note misplaced: text=%q diagnostics=%q", res.Overall.Text, s.Diagnostics)
	}
}

func TestSuiteOverrideKeepsUnsetFields(t *testing.T) {
	f := newFixture(t, class(calculatorTest,
		engine.Test{Name: "testPass", Func: func(*engine.T) {}},
		engine.Test{Name: "testFail", Meta: &models.Gradeable{PrintExceptionMessage: true}, Func: func(t *engine.T) {
			t.Error("wrong sum")
		}},
	))
	suite := filepath.Join(f.in.TestRoot, "suite.yaml")
	os.WriteFile(suite, []byte("classes:\n  - name: example.CalculatorTest\n    mode: VERBOSE\n    tests:\n      testFail: {description: sums badly}\n"), 0o644)

	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Overall.Suites[0]
	if s.PassedWeight != 1 || s.TotalWeight != 2 || s.Percent != 50 {
		t.Errorf("passed=%d total=%d percent=%v, want 1/2/50", s.PassedWeight, s.TotalWeight, s.Percent)
	}
	for _, want := range []string{"\tDescription: sums badly\n", "wrong sum"} {
		if !strings.Contains(res.Overall.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Overall.Text)
		}
	}
}

func TestMixedAndNonTestClassesSkipped(t *testing.T) {
	mixed := class("example.MixedTest",
		engine.Test{Name: "a", Framework: engine.JUnit, Func: func(*engine.T) {}},
		engine.Test{Name: "b", Framework: engine.TestNG, Func: func(*engine.T) {}},
	)
	f := newFixture(t, mixed, class("example.HelperTest"))
	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Overall.Suites) != 0 || res.Overall.Incomplete {
		t.Errorf("result = %+v", res.Overall)
	}
}

func TestStuckWorkerReaped(t *testing.T) {
	unblock := make(chan struct{})
	defer close(unblock)
	refused := make(chan error, 1)

	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testHang", Timeout: 20 * time.Millisecond, Func: func(t *engine.T) {
		<-unblock
		refused <- quit(t.Context())
	}}))
	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Reaped) != 1 || !strings.HasPrefix(res.Reaped[0], "engine-worker-example.CalculatorTest-testHang") {
		t.Errorf("Reaped = %v", res.Reaped)
	}
	if o := res.Overall.Suites[0].Outcomes[0]; o.Status != models.Failed || !strings.Contains(o.Thrown.Type, "TimeoutError") {
		t.Errorf("outcome = %+v", o)
	}

	unblock <- struct{}{}
	if err := <-refused; !errors.Is(err, guard.ErrReaped) {
		t.Errorf("reaped worker operation error = %v, want ErrReaped", err)
	}
}

func TestTimedOutWorkerCannotExit(t *testing.T) {
	var mu sync.Mutex
	exits := 0
	prev := guard.SetExitFunc(func(int) {
		mu.Lock()
		exits++
		mu.Unlock()
	})
	defer guard.SetExitFunc(prev)

	stop := make(chan struct{})
	stopped := make(chan error, 1)
	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testSpin", Timeout: 20 * time.Millisecond, Func: func(t *engine.T) {
		var err error
		for {
			select {
			case <-stop:
				stopped <- err
				return
			default:
			}
			err = quit(t.Context())
			time.Sleep(time.Millisecond)
		}
	}}))
	res, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Reaped) != 1 {
		t.Errorf("Reaped = %v", res.Reaped)
	}

	// keep spinning after the sandbox is gone
	time.Sleep(30 * time.Millisecond)
	close(stop)
	if err := <-stopped; !errors.Is(err, guard.ErrReaped) {
		t.Errorf("last exit attempt error = %v, want ErrReaped", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if exits != 0 {
		t.Errorf("exit function called %d times by a timed-out submission", exits)
	}
}

func TestSingleRun(t *testing.T) {
	inside := make(chan struct{})
	done := make(chan struct{})
	f := newFixture(t, class(calculatorTest, engine.Test{Name: "testWait", Func: func(t *engine.T) {
		close(inside)
		<-done
	}}))
	o := f.orchestrator(Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.Run(context.Background(), f.in); err != nil {
			t.Errorf("first Run() error = %v", err)
		}
	}()
	<-inside
	_, err := f.orchestrator(Options{}).Run(context.Background(), f.in)
	close(done)
	wg.Wait()

	if !pkgerrors.Is(err, pkgerrors.AlreadyRunning) {
		t.Fatalf("second Run() error = %v, want AlreadyRunning", err)
	}
	if err.Error() != "Only one instance of the tester should be running at the same time!" {
		t.Errorf("message = %q", err.Error())
	}
	if Running() {
		t.Error("lock still held after both runs")
	}
}

func TestRunRequiresRoots(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(Options{})
	in := f.in
	in.ContentRoot = filepath.Join(t.TempDir(), "missing")
	if _, err := o.Run(context.Background(), in); !pkgerrors.Is(err, pkgerrors.ConfigurationError) {
		t.Errorf("Run() error = %v, want ConfigurationError", err)
	}
	if o.Sandbox().Installed() {
		t.Error("sandbox installed despite configuration error")
	}
}

func TestGradeNothingToRun(t *testing.T) {
	f := newFixture(t)
	out, err := f.orchestrator(Options{}).Grade(context.Background(), f.in, GradeOptions{NoTests: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Output != "TEST RESULTS\n\nNothing to run.\n" {
		t.Errorf("Output = %q", out.Output)
	}

	// no roots are needed when nothing runs
	out, err = f.orchestrator(Options{}).Grade(context.Background(), Input{}, GradeOptions{NoTests: true})
	if err != nil {
		t.Fatalf("Grade() without roots error = %v", err)
	}
	if !strings.HasSuffix(out.Output, "Nothing to run.\n") {
		t.Errorf("Output = %q", out.Output)
	}
}

func TestAbortMessage(t *testing.T) {
	v := &sandbox.Violation{Policy: sandbox.DisableTerminate, Reason: sandbox.ExitMessage}
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("run: %w", v), "Testing was aborted due to an illegal statement. Remove the statement to continue."},
		{pkgerrors.New(pkgerrors.EngineFailure), "Could not run one or more classes. Please check if the folder structure matches package definitions."},
		{errors.New("boom"), "Internal error, cannot continue."},
	}
	for _, tt := range tests {
		if got := abortMessage(tt.err); got != tt.want {
			t.Errorf("abortMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"b/Two.go", "a/One.go", "a/notes.txt", ".git/Hidden.go", "Top.GO"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		os.MkdirAll(filepath.Dir(full), 0o755)
		os.WriteFile(full, nil, 0o644)
	}
	files, err := Discover(root, []string{".go"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(files) != "[Top.GO a/One.go b/Two.go]" {
		t.Errorf("Discover() = %v", files)
	}
	if got := UnitName("a/b/CalculatorTest.go"); got != "a.b.CalculatorTest" {
		t.Errorf("UnitName() = %q", got)
	}
}
