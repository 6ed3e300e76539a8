package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/models"
)

// AssertionError is recorded for Error/Fatal calls that carry no error value.
type AssertionError struct{ Msg string }

func (e *AssertionError) Error() string { return e.Msg }

// TimeoutError fails a test that outlived its deadline.
type TimeoutError struct {
	Test    string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("test %s timed out after %s", e.Test, e.Timeout)
}

// SkipError explains a skipped test.
type SkipError struct{ Reason string }

func (e *SkipError) Error() string { return e.Reason }

// T is handed to every test body.
type T struct {
	ctx   context.Context
	suite string
	name  string

	mu      sync.Mutex
	failed  bool
	skipped bool
	thrown  *models.Thrown
}

func newT(ctx context.Context, suite, name string) *T {
	return &T{ctx: ctx, suite: suite, name: name}
}

// Context carries the test's call frame, sandbox and deadline. Pass it to
// submission code.
func (t *T) Context() context.Context { return t.ctx }

func (t *T) Name() string { return t.name }

func (t *T) Log(args ...interface{}) {
	slog.Debug("test log", "suite", t.suite, "test", t.name, "msg", fmt.Sprintln(args...))
}

func (t *T) Logf(format string, args ...interface{}) {
	slog.Debug("test log", "suite", t.suite, "test", t.name, "msg", fmt.Sprintf(format, args...))
}

// Error marks the test failed. A single error argument is recorded as the
// thrown error itself.
func (t *T) Error(args ...interface{}) {
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			t.fail(err)
			return
		}
	}
	t.fail(&AssertionError{Msg: strings.TrimSuffix(fmt.Sprintln(args...), "\n")})
}

// Errorf marks the test failed. Errors wrapped with %w keep their type.
func (t *T) Errorf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	if errors.Unwrap(err) == nil {
		err = &AssertionError{Msg: err.Error()}
	}
	t.fail(err)
}

func (t *T) Fatal(args ...interface{}) {
	t.Error(args...)
	runtime.Goexit()
}

func (t *T) Fatalf(format string, args ...interface{}) {
	t.Errorf(format, args...)
	runtime.Goexit()
}

func (t *T) Fail() { t.fail(nil) }

func (t *T) FailNow() {
	t.fail(nil)
	runtime.Goexit()
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Skip stops the test and records it as skipped.
func (t *T) Skip(args ...interface{}) {
	t.mu.Lock()
	if !t.failed {
		t.skipped = true
		t.thrown = thrownOf(&SkipError{Reason: strings.TrimSuffix(fmt.Sprintln(args...), "\n")}, "")
	}
	t.mu.Unlock()
	runtime.Goexit()
}

func (t *T) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
	if t.thrown == nil {
		if err == nil {
			err = &AssertionError{Msg: "test failed"}
		}
		t.thrown = thrownOf(err, string(debug.Stack()))
	}
}

func (t *T) recordPanic(r interface{}, stack string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
	t.skipped = false
	if err, ok := r.(error); ok {
		t.thrown = thrownOf(err, stack)
		return
	}
	t.thrown = &models.Thrown{Type: fmt.Sprintf("%T", r), Message: fmt.Sprint(r), Stack: stack}
}

func (t *T) result() (models.Status, *models.Thrown) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.failed:
		return models.Failed, t.thrown
	case t.skipped:
		return models.Skipped, t.thrown
	default:
		return models.Passed, nil
	}
}

// thrownOf describes err. Wrapping by fmt.Errorf is looked through so the
// report names the meaningful type.
func thrownOf(err error, stack string) *models.Thrown {
	th := &models.Thrown{Message: err.Error(), Stack: stack}
	var v *sandbox.Violation
	if errors.As(err, &v) {
		th.Type = fmt.Sprintf("%T", v)
		th.Policy = string(v.Policy)
		return th
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	th.Type = fmt.Sprintf("%T", root)
	return th
}
