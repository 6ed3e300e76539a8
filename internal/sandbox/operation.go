package sandbox

import (
	"context"
	"fmt"
)

// CodeUnit names a compiled class or module, e.g. "example.Calculator".
type CodeUnit string

// Frame is one entry of an execution call chain.
type Frame struct {
	Unit   CodeUnit
	Method string
	// Synthetic frames are wrappers (closures, adapters) that attribution skips.
	Synthetic bool
}

func (f Frame) String() string {
	if f.Method == "" {
		return string(f.Unit)
	}
	return fmt.Sprintf("%s.%s", f.Unit, f.Method)
}

type OpKind int

const (
	OpTerminate OpKind = iota + 1
	OpFile
	OpReflect
	OpExec
	OpConnect
	OpTamper
)

func (k OpKind) String() string {
	switch k {
	case OpTerminate:
		return "terminate"
	case OpFile:
		return "file"
	case OpReflect:
		return "reflect"
	case OpExec:
		return "exec"
	case OpConnect:
		return "connect"
	case OpTamper:
		return "tamper"
	default:
		return "unknown"
	}
}

// AllFiles is the file target that requests unrestricted file system access.
const AllFiles = "<<ALL FILES>>"

// Operation is an attempted security-sensitive action.
type Operation struct {
	Kind OpKind
	// Target is the path, command, address or sandbox action involved.
	Target string
	// Frames is the active call chain, innermost first.
	Frames []Frame
}

func (op Operation) String() string {
	if op.Target == "" {
		return op.Kind.String()
	}
	return op.Kind.String() + " " + op.Target
}

// NewOperation builds an operation attributed to the call chain in ctx.
func NewOperation(ctx context.Context, kind OpKind, target string) Operation {
	return Operation{Kind: kind, Target: target, Frames: Frames(ctx)}
}

type stackKey struct{}

type callStack struct {
	frame  Frame
	parent *callStack
	depth  int
}

// Enter returns a context whose call chain has unit.method pushed on top.
func Enter(ctx context.Context, unit CodeUnit, method string) context.Context {
	return push(ctx, Frame{Unit: unit, Method: method})
}

// EnterSynthetic pushes a wrapper frame that still counts for blacklist
// checks but is skipped when attributing messages to a test method.
func EnterSynthetic(ctx context.Context, unit CodeUnit, method string) context.Context {
	return push(ctx, Frame{Unit: unit, Method: method, Synthetic: true})
}

func push(ctx context.Context, f Frame) context.Context {
	parent, _ := ctx.Value(stackKey{}).(*callStack)
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return context.WithValue(ctx, stackKey{}, &callStack{frame: f, parent: parent, depth: depth})
}

// Frames returns the call chain carried by ctx, innermost first.
func Frames(ctx context.Context) []Frame {
	s, _ := ctx.Value(stackKey{}).(*callStack)
	if s == nil {
		return nil
	}
	frames := make([]Frame, 0, s.depth)
	for ; s != nil; s = s.parent {
		frames = append(frames, s.frame)
	}
	return frames
}

type stateKey struct{}

// WithState attaches the sandbox handle that guarded operations report to.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// FromContext returns the sandbox attached to ctx, or nil.
func FromContext(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}
