// Package guard holds the security-sensitive entry points submission code is
// built against. Each call is attributed to the call chain in its context and
// checked by the sandbox attached to that context before it runs.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/sempr/studenttester-go/internal/sandbox"
)

// ErrExitRequested is returned by Exit when the process must keep running
// because a grading run owns it.
var ErrExitRequested = errors.New("exit requested during a grading run")

// ErrReaped is returned to workers the orchestrator has abandoned.
var ErrReaped = errors.New("worker was reaped, operation refused")

var (
	exitMu sync.Mutex
	exitFn = os.Exit
)

// SetExitFunc swaps the function used when an exit is allowed outside a run.
// It returns the previous one.
func SetExitFunc(fn func(int)) func(int) {
	exitMu.Lock()
	defer exitMu.Unlock()
	prev := exitFn
	exitFn = fn
	return prev
}

func check(ctx context.Context, kind sandbox.OpKind, target string) error {
	if abandoned(ctx) {
		return ErrReaped
	}
	s := sandbox.FromContext(ctx)
	if s == nil {
		return nil
	}
	return s.Check(sandbox.NewOperation(ctx, kind, target))
}

// Exit terminates the process with code, unless a sandbox is installed. A
// forbidden exit returns the violation; an allowed exit inside a run returns
// ErrExitRequested.
func Exit(ctx context.Context, code int) error {
	if err := check(ctx, sandbox.OpTerminate, fmt.Sprint(code)); err != nil {
		return err
	}
	if s := sandbox.FromContext(ctx); s != nil && s.Installed() {
		return ErrExitRequested
	}
	exitMu.Lock()
	fn := exitFn
	exitMu.Unlock()
	fn(code)
	return nil
}

func Open(ctx context.Context, name string) (*os.File, error) {
	if err := checkPath(ctx, name); err != nil {
		return nil, err
	}
	return os.Open(name)
}

func Create(ctx context.Context, name string) (*os.File, error) {
	if err := checkPath(ctx, name); err != nil {
		return nil, err
	}
	return os.Create(name)
}

func ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := checkPath(ctx, name); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

func WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := checkPath(ctx, name); err != nil {
		return err
	}
	return os.WriteFile(name, data, perm)
}

func Remove(ctx context.Context, name string) error {
	if err := checkPath(ctx, name); err != nil {
		return err
	}
	return os.Remove(name)
}

// ReadDir lists a directory; listing is checked like any other file access.
func ReadDir(ctx context.Context, name string) ([]os.DirEntry, error) {
	if err := checkPath(ctx, name); err != nil {
		return nil, err
	}
	return os.ReadDir(name)
}

// OpenAll requests unrestricted access to the file system, which is what a
// recursive walk from the root amounts to.
func OpenAll(ctx context.Context) error {
	return check(ctx, sandbox.OpFile, sandbox.AllFiles)
}

func checkPath(ctx context.Context, name string) error {
	target := name
	if abs, err := filepath.Abs(name); err == nil {
		target = abs
	}
	return check(ctx, sandbox.OpFile, target)
}

// Command prepares an external command.
func Command(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
	if err := check(ctx, sandbox.OpExec, name); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, name, args...), nil
}

// Dial opens a network connection.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := check(ctx, sandbox.OpConnect, network+"://"+address); err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// Inspect returns a reflect.Value of v.
func Inspect(ctx context.Context, v interface{}) (reflect.Value, error) {
	if err := check(ctx, sandbox.OpReflect, fmt.Sprintf("%T", v)); err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(v), nil
}

// Field reads an exported struct field by name.
func Field(ctx context.Context, v interface{}, name string) (interface{}, error) {
	rv, err := Inspect(ctx, v)
	if err != nil {
		return nil, err
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T is not a struct", v)
	}
	f := rv.FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("%T has no field %s", v, name)
	}
	if !f.CanInterface() {
		return nil, fmt.Errorf("field %s of %T is not exported", name, v)
	}
	return f.Interface(), nil
}

// Uninstall tries to remove the sandbox from the run.
func Uninstall(ctx context.Context) error {
	s := sandbox.FromContext(ctx)
	if err := check(ctx, sandbox.OpTamper, "uninstall"); err != nil {
		return err
	}
	if s != nil {
		s.Uninstall()
	}
	return nil
}

type reapedKey struct{}

// WithReapFlag marks ctx as a worker context: once it is cancelled or the flag
// is set, guarded operations report ErrReaped. The engine sets it on worker
// contexts.
func WithReapFlag(ctx context.Context, flag *ReapFlag) context.Context {
	return context.WithValue(ctx, reapedKey{}, flag)
}

// ReapFlag records that a worker was abandoned.
type ReapFlag struct {
	mu   sync.Mutex
	done bool
}

func (f *ReapFlag) Set() {
	f.mu.Lock()
	f.done = true
	f.mu.Unlock()
}

func (f *ReapFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// abandoned reports whether ctx belongs to a worker that was reaped or whose
// context is done; the engine no longer waits for such a worker.
func abandoned(ctx context.Context) bool {
	f, _ := ctx.Value(reapedKey{}).(*ReapFlag)
	if f == nil {
		return false
	}
	return f.IsSet() || ctx.Err() != nil
}
