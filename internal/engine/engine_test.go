package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sempr/studenttester-go/internal/guard"
	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/constants"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

type recorder struct {
	mu       sync.Mutex
	events   []string
	outcomes map[string]models.TestOutcome
}

func newRecorder() *recorder { return &recorder{outcomes: make(map[string]models.TestOutcome)} }

func (r *recorder) SuiteStart(s *Suite) { r.add("start " + s.Name) }

func (r *recorder) TestStart(s *Suite, t *Test) { r.add("test " + t.Name) }

func (r *recorder) TestFinish(s *Suite, o models.TestOutcome) {
	r.add("done " + o.TestID + " " + o.Status.String())
	r.mu.Lock()
	r.outcomes[o.TestID] = o
	r.mu.Unlock()
}

func (r *recorder) SuiteFinish(s *Suite) { r.add("finish " + s.Name) }

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func run(t *testing.T, e *Engine, classes ...*Class) *recorder {
	t.Helper()
	rec := newRecorder()
	e.UseDefaultListeners = false
	e.AddListener(rec)
	suites := make([]*Suite, len(classes))
	for i, c := range classes {
		suites[i] = NewSuite(c)
	}
	if err := e.Run(context.Background(), suites); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rec
}

func TestClassify(t *testing.T) {
	body := func(*T) {}
	tests := []struct {
		name  string
		tests []Test
		want  ClassKind
	}{
		{"empty", nil, ClassNotTest},
		{"junit", []Test{{Name: "a", Framework: JUnit, Func: body}}, ClassJUnit},
		{"testng", []Test{{Name: "a", Framework: TestNG, Func: body}}, ClassTestNG},
		{"mixed", []Test{{Name: "a", Framework: JUnit, Func: body}, {Name: "b", Framework: TestNG, Func: body}}, ClassMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Class{Name: "x.Test", Tests: tt.tests}
			if got := c.Classify(); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcomes(t *testing.T) {
	c := &Class{Name: "example.CalculatorTest", Tests: []Test{
		{Name: "pass", Framework: TestNG, Func: func(t *T) {}},
		{Name: "errorf", Framework: TestNG, Func: func(t *T) { t.Errorf("got %d, want %d", 1, 2) }},
		{Name: "fatal", Framework: TestNG, Func: func(t *T) {
			t.Fatal(errors.New("boom"))
			panic("unreachable")
		}},
		{Name: "panic", Framework: TestNG, Func: func(t *T) {
			var m map[string]int
			m["x"] = 1
		}},
		{Name: "skip", Framework: TestNG, Func: func(t *T) { t.Skip("not today") }},
	}}
	rec := run(t, New(), c)

	tests := []struct {
		id       string
		status   models.Status
		typeName string
	}{
		{"pass", models.Passed, ""},
		{"errorf", models.Failed, "*engine.AssertionError"},
		{"fatal", models.Failed, "*errors.errorString"},
		{"panic", models.Failed, "runtime.plainError"},
		{"skip", models.Skipped, "*engine.SkipError"},
	}
	for _, tt := range tests {
		o := rec.outcomes[tt.id]
		if o.Status != tt.status {
			t.Errorf("%s: status = %v, want %v", tt.id, o.Status, tt.status)
		}
		if tt.typeName == "" {
			if o.Thrown != nil {
				t.Errorf("%s: thrown = %v", tt.id, o.Thrown)
			}
			continue
		}
		if o.Thrown == nil || (tt.id != "panic" && o.Thrown.Type != tt.typeName) {
			t.Errorf("%s: thrown = %+v, want type %s", tt.id, o.Thrown, tt.typeName)
		}
	}
	if msg := rec.outcomes["errorf"].Thrown.Message; msg != "got 1, want 2" {
		t.Errorf("errorf message = %q", msg)
	}
	if rec.outcomes["fatal"].Thrown.Stack == "" {
		t.Error("fatal outcome has no stack")
	}
}

func TestViolationIsRecorded(t *testing.T) {
	s := sandbox.New()
	if err := s.Install([]sandbox.CodeUnit{"example.Calculator"}, sandbox.DefaultPolicies(), nil); err != nil {
		t.Fatal(err)
	}
	defer s.Uninstall()

	c := &Class{Name: "example.CalculatorTest", Tests: []Test{
		{Name: "exits", Framework: JUnit, Func: func(t *T) {
			ctx := sandbox.Enter(t.Context(), "example.Calculator", "Quit")
			if err := guard.Exit(ctx, 0); err != nil {
				t.Fatalf("quit: %w", err)
			}
		}},
	}}
	e := New()
	e.UseDefaultListeners = false
	rec := newRecorder()
	e.AddListener(rec)
	ctx := sandbox.WithState(context.Background(), s)
	if err := e.Run(ctx, []*Suite{NewSuite(c)}); err != nil {
		t.Fatal(err)
	}
	o := rec.outcomes["exits"]
	if o.Status != models.Failed || o.Thrown == nil {
		t.Fatalf("outcome = %+v", o)
	}
	if o.Thrown.Policy != string(sandbox.DisableTerminate) || o.Thrown.Type != "*sandbox.Violation" {
		t.Errorf("thrown = %+v", o.Thrown)
	}
}

func TestDependencies(t *testing.T) {
	body := func(*T) {}
	c := &Class{Name: "example.OrderTest", Tests: []Test{
		{Name: "third", Framework: TestNG, Func: body, DependsOn: []string{"second"}},
		{Name: "second", Framework: TestNG, Func: func(t *T) { t.Fail() }, DependsOn: []string{"first"}},
		{Name: "first", Framework: TestNG, Func: body},
		{Name: "other", Framework: TestNG, Func: body, DependsOn: []string{"first"}},
	}}
	rec := run(t, New(), c)

	want := []string{
		"start example.OrderTest (TestNG)",
		"test first", "done first SUCCESS",
		"test second", "done second FAILURE",
		"done third SKIPPED",
		"test other", "done other SUCCESS",
		"finish example.OrderTest (TestNG)",
	}
	if strings.Join(rec.events, "|") != strings.Join(want, "|") {
		t.Errorf("events =\n%v\nwant\n%v", rec.events, want)
	}
	third := rec.outcomes["third"]
	if len(third.DependsOn) != 1 || !strings.Contains(third.Thrown.Message, "second") {
		t.Errorf("third = %+v", third)
	}
}

func TestValidate(t *testing.T) {
	body := func(*T) {}
	cycle := &Class{Name: "x.Cycle", Tests: []Test{
		{Name: "a", Framework: TestNG, Func: body, DependsOn: []string{"b"}},
		{Name: "b", Framework: TestNG, Func: body, DependsOn: []string{"a"}},
	}}
	unknown := &Class{Name: "x.Unknown", Tests: []Test{
		{Name: "a", Framework: TestNG, Func: body, DependsOn: []string{"missing"}},
	}}
	dup := &Class{Name: "x.Dup", Tests: []Test{
		{Name: "a", Framework: JUnit, Func: body},
		{Name: "a", Framework: JUnit, Func: body},
	}}
	for _, c := range []*Class{cycle, unknown, dup} {
		if err := c.Validate(); !pkgerrors.Is(err, pkgerrors.EngineFailure) {
			t.Errorf("%s: Validate() error = %v", c.Name, err)
		}
	}
	ok := &Class{Name: "x.Ok", Tests: []Test{{Name: "a", Framework: JUnit, Func: body, DependsOn: []string{"ignored"}}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("JUnit class with dependencies: Validate() error = %v", err)
	}
}

func TestTimeoutAndReap(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var refused error
	var mu sync.Mutex
	reaped := make(chan struct{})

	c := &Class{Name: "example.SlowTest", Tests: []Test{
		{Name: "hangs", Framework: JUnit, Timeout: 20 * time.Millisecond, Func: func(t *T) {
			<-release
		}},
		{Name: "ignoresContext", Framework: JUnit, Timeout: 20 * time.Millisecond, Func: func(t *T) {
			<-reaped
			err := guard.Exit(t.Context(), 1)
			mu.Lock()
			refused = err
			mu.Unlock()
			<-release
		}},
	}}
	e := New()
	rec := run(t, e, c)

	for _, id := range []string{"hangs", "ignoresContext"} {
		o := rec.outcomes[id]
		if o.Status != models.Failed || o.Thrown == nil || o.Thrown.Type != "*engine.TimeoutError" {
			t.Errorf("%s outcome = %+v", id, o)
		}
	}
	if alive := e.Workers.Alive(); len(alive) != 2 {
		t.Fatalf("Alive() = %v", alive)
	}
	got := e.Workers.Reap(constants.WorkerPrefix)
	if len(got) != 2 || !strings.HasPrefix(got[0], constants.WorkerPrefix+"example.SlowTest-") {
		t.Errorf("Reap() = %v", got)
	}
	close(reaped)
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		err := refused
		mu.Unlock()
		if err != nil {
			if !errors.Is(err, guard.ErrReaped) {
				t.Errorf("reaped worker Exit() error = %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reaped worker never attempted its exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if alive := e.Workers.Alive(); len(alive) != 0 {
		t.Errorf("Alive() after Reap() = %v", alive)
	}
}

func TestRunOnce(t *testing.T) {
	e := New()
	e.UseDefaultListeners = false
	if err := e.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), nil); !errors.Is(err, ErrAlreadyRan) {
		t.Errorf("second Run() error = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&Class{Name: "example.CalculatorTest"})
	r.RegisterUnit("example.Calculator")

	if _, err := r.Lookup("example.CalculatorTest"); err != nil {
		t.Errorf("Lookup() error = %v", err)
	}
	if _, err := r.Lookup("example.Calculator"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("Lookup(unit) error = %v", err)
	}
	if err := r.Load("example.Calculator"); err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if got := r.Units(); len(got) != 2 || got[0] != "example.Calculator" {
		t.Errorf("Units() = %v", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register() did not panic")
		}
	}()
	r.Register(&Class{Name: "example.CalculatorTest"})
}
