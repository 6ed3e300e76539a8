// Package engine discovers and runs test methods of registered classes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/constants"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

// ErrAlreadyRan is returned when Run is called a second time.
var ErrAlreadyRan = errors.New("engine: Run called more than once")

// Suite is one class scheduled for execution.
type Suite struct {
	// Name is the display name, e.g. "example.CalculatorTest (TestNG)".
	Name   string
	Class  *Class
	Config models.ContextConfig
}

// NewSuite schedules c with its declared configuration.
func NewSuite(c *Class) *Suite {
	cfg := models.DefaultContextConfig()
	if c.Config != nil {
		cfg = *c.Config
	}
	return &Suite{
		Name:   fmt.Sprintf("%s (%s)", c.Name, c.Classify()),
		Class:  c,
		Config: cfg,
	}
}

type Engine struct {
	Listeners           []Listener
	UseDefaultListeners bool
	// DefaultTimeout bounds tests without their own timeout; zero means none.
	DefaultTimeout time.Duration
	Workers        *Workers

	ran atomic.Bool
}

func New() *Engine {
	return &Engine{UseDefaultListeners: true, Workers: NewWorkers()}
}

func (e *Engine) AddListener(l Listener) { e.Listeners = append(e.Listeners, l) }

func (e *Engine) listeners() []Listener {
	if !e.UseDefaultListeners {
		return e.Listeners
	}
	return append([]Listener{&ProgressListener{Out: os.Stdout}}, e.Listeners...)
}

// Run executes every suite in order. Failing tests are outcomes, not errors;
// an error means the engine itself could not run.
func (e *Engine) Run(ctx context.Context, suites []*Suite) (err error) {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}
	if e.Workers == nil {
		e.Workers = NewWorkers()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine crashed", "panic", r, "stack", string(debug.Stack()))
			err = pkgerrors.Newf(pkgerrors.EngineFailure, "engine crashed: %v", r)
		}
	}()

	ls := e.listeners()
	for _, s := range suites {
		if err := e.runSuite(ctx, s, ls); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) runSuite(ctx context.Context, s *Suite, ls []Listener) error {
	plan, err := s.Class.plan()
	if err != nil {
		return err
	}
	for _, l := range ls {
		l.SuiteStart(s)
	}

	status := make(map[string]models.Status, len(plan))
	for _, test := range plan {
		var o models.TestOutcome
		if unmet := e.unmet(s, test, status); len(unmet) > 0 {
			now := time.Now()
			o = models.TestOutcome{
				Suite:  s.Name,
				TestID: test.Name,
				Status: models.Skipped,
				Start:  now,
				End:    now,
				Meta:   test.Meta,
				Thrown: thrownOf(&SkipError{
					Reason: fmt.Sprintf("depends on not successfully finished methods [%s]", strings.Join(unmet, ", ")),
				}, ""),
				DependsOn: test.DependsOn,
			}
		} else {
			for _, l := range ls {
				l.TestStart(s, test)
			}
			o = e.runTest(ctx, s, test)
		}
		status[test.Name] = o.Status
		for _, l := range ls {
			l.TestFinish(s, o)
		}
	}

	for _, l := range ls {
		l.SuiteFinish(s)
	}
	return nil
}

func (e *Engine) unmet(s *Suite, test *Test, status map[string]models.Status) []string {
	if len(test.DependsOn) == 0 {
		return nil
	}
	if s.Class.Classify() != ClassTestNG {
		slog.Debug("dependencies ignored outside TestNG classes", "suite", s.Name, "test", test.Name)
		return nil
	}
	var unmet []string
	for _, dep := range test.DependsOn {
		if status[dep] != models.Passed {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

func (e *Engine) timeout(test *Test) time.Duration {
	if test.Timeout > 0 {
		return test.Timeout
	}
	return e.DefaultTimeout
}

// runTest races the test body on a named worker against its timeout.
func (e *Engine) runTest(ctx context.Context, s *Suite, test *Test) models.TestOutcome {
	o := models.TestOutcome{
		Suite:     s.Name,
		TestID:    test.Name,
		Meta:      test.Meta,
		DependsOn: test.DependsOn,
		Start:     time.Now(),
	}

	testCtx := sandbox.Enter(ctx, s.Class.Name, test.Name)
	limit := e.timeout(test)
	var cancel context.CancelFunc = func() {}
	if limit > 0 {
		testCtx, cancel = context.WithTimeout(testCtx, limit)
	}
	defer cancel()

	var t *T
	name := constants.WorkerPrefix + string(s.Class.Name) + "-" + test.Name
	done := e.Workers.Go(testCtx, name, func(wctx context.Context) {
		t = newT(wctx, s.Name, test.Name)
		defer func() {
			if r := recover(); r != nil {
				t.recordPanic(r, string(debug.Stack()))
			}
		}()
		test.Func(t)
	})

	var timer <-chan time.Time
	if limit > 0 {
		tm := time.NewTimer(limit)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-done:
		o.End = time.Now()
		o.Status, o.Thrown = t.result()
		if o.Status == models.Passed && errors.Is(testCtx.Err(), context.DeadlineExceeded) {
			o.Status = models.Failed
			o.Thrown = thrownOf(&TimeoutError{Test: test.Name, Timeout: limit.String()}, "")
		}
	case <-timer:
		o.End = time.Now()
		o.Status = models.Failed
		o.Thrown = thrownOf(&TimeoutError{Test: test.Name, Timeout: limit.String()}, "")
		slog.Warn("test timed out, leaving its worker behind", "suite", s.Name, "test", test.Name, "timeout", limit)
	case <-ctx.Done():
		o.End = time.Now()
		o.Status = models.Failed
		o.Thrown = thrownOf(ctx.Err(), "")
	}
	return o
}
