// Package api is the facade test code uses to talk to the harness while it
// runs: logging notes about a test and adjusting the sandbox.
package api

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/sempr/studenttester-go/internal/sandbox"
)

type notebookKey struct{}

// WithNotebook attaches the run notebook. Only the orchestrator calls it.
func WithNotebook(ctx context.Context, n *Notebook) context.Context {
	return context.WithValue(ctx, notebookKey{}, n)
}

// Tester is the extension API bound to the calling context.
type Tester struct {
	ctx   context.Context
	notes *Notebook
	state *sandbox.State
}

// From returns the API for ctx. Outside a grading run the returned Tester is
// inert.
func From(ctx context.Context) *Tester {
	n, _ := ctx.Value(notebookKey{}).(*Notebook)
	return &Tester{ctx: ctx, notes: n, state: sandbox.FromContext(ctx)}
}

// Active reports whether the Tester is bound to a running grading run.
func (t *Tester) Active() bool { return t.notes != nil }

func (t *Tester) inert(op string) bool {
	if t.notes != nil {
		return false
	}
	slog.Warn("tester API used outside a grading run, ignoring", "op", op)
	return true
}

// LogPrivate files msg for the machine-readable report only.
func (t *Tester) LogPrivate(msg string) {
	if t.inert("LogPrivate") {
		return
	}
	unit, method := Origin(t.ctx)
	t.notes.AddPrivate(string(unit), method, msg)
}

// LogPublic files msg for both the human and machine-readable reports.
func (t *Tester) LogPublic(msg string) {
	if t.inert("LogPublic") {
		return
	}
	unit, method := Origin(t.ctx)
	t.notes.AddPublic(string(unit), method, msg)
}

// PrivateMessages returns every private message keyed by Key(suite, test).
func (t *Tester) PrivateMessages() map[string][]string {
	if t.inert("PrivateMessages") {
		return map[string][]string{}
	}
	return copyMessages(t.notes, t.notes.private)
}

func (t *Tester) PublicMessages() map[string][]string {
	if t.inert("PublicMessages") {
		return map[string][]string{}
	}
	return copyMessages(t.notes, t.notes.public)
}

func (t *Tester) AddToBlacklist(unit sandbox.CodeUnit) error {
	if t.inert("AddToBlacklist") || t.state == nil {
		return nil
	}
	return t.state.AddToBlacklist(t.ctx, unit)
}

func (t *Tester) RemoveFromBlacklist(unit sandbox.CodeUnit) error {
	if t.inert("RemoveFromBlacklist") || t.state == nil {
		return nil
	}
	return t.state.RemoveFromBlacklist(t.ctx, unit)
}

func (t *Tester) AddPolicy(kind sandbox.PolicyKind) error {
	if t.inert("AddPolicy") || t.state == nil {
		return nil
	}
	return t.state.AddPolicy(t.ctx, kind)
}

func (t *Tester) RemovePolicy(kind sandbox.PolicyKind) error {
	if t.inert("RemovePolicy") || t.state == nil {
		return nil
	}
	return t.state.RemovePolicy(t.ctx, kind)
}

func (t *Tester) AddProtectedResource(name string) error {
	if t.inert("AddProtectedResource") || t.state == nil {
		return nil
	}
	return t.state.AddProtectedResource(t.ctx, name)
}

func (t *Tester) RemoveProtectedResource(name string) error {
	if t.inert("RemoveProtectedResource") || t.state == nil {
		return nil
	}
	return t.state.RemoveProtectedResource(t.ctx, name)
}

// closure and method value suffixes the Go toolchain gives wrapper functions
var wrapperName = regexp.MustCompile(`^(.+?)(?:\.func\d+(?:\.\d+)*|-fm)$`)

// Origin finds the test method a call is attributed to: the innermost frame
// that is not synthetic, with wrapper names folded into the enclosing method.
func Origin(ctx context.Context) (sandbox.CodeUnit, string) {
	for _, f := range sandbox.Frames(ctx) {
		if f.Synthetic {
			continue
		}
		return f.Unit, NormalizeMethod(f.Method)
	}
	return "", ""
}

func NormalizeMethod(name string) string {
	if m := wrapperName.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}
