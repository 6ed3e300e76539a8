package sandbox

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PolicyKind names a category of forbidden operation.
type PolicyKind string

const (
	DisableTerminate               PolicyKind = "DISABLE_TERMINATE"
	DisableWildcardFileAccess      PolicyKind = "DISABLE_WILDCARD_FILE_ACCESS"
	DisableSandboxTamper           PolicyKind = "DISABLE_SANDBOX_TAMPER"
	DisableReflection              PolicyKind = "DISABLE_REFLECTION"
	DisableExternalExec            PolicyKind = "DISABLE_EXTERNAL_EXEC"
	DisableProtectedResourceAccess PolicyKind = "DISABLE_PROTECTED_RESOURCE_ACCESS"
	DisableNetwork                 PolicyKind = "DISABLE_NETWORK"
)

// ExitMessage is the reason given when a submission tries to end the process.
const ExitMessage = "Illegal attempt to exit the process."

// Env is the view of the sandbox a predicate may consult.
type Env interface {
	Blacklisted(unit CodeUnit) bool
	Protected(target string) bool
}

// Predicate reports whether op is forbidden.
type Predicate func(op Operation, env Env) bool

type policy struct {
	forbids Predicate
	reason  func(op Operation) string
}

var (
	policiesMu sync.RWMutex
	policies   = map[PolicyKind]policy{
		DisableTerminate: {
			forbids: func(op Operation, _ Env) bool { return op.Kind == OpTerminate },
			reason:  fixed(ExitMessage),
		},
		DisableWildcardFileAccess: {
			forbids: func(op Operation, _ Env) bool {
				return op.Kind == OpFile && (op.Target == "" || op.Target == AllFiles)
			},
			reason: fixed("Illegal attempt to access the file system."),
		},
		DisableSandboxTamper: {
			forbids: func(op Operation, _ Env) bool { return op.Kind == OpTamper },
			reason:  fixed("Illegal attempt to modify the sandbox."),
		},
		DisableReflection: {
			// shallow: only the immediately originating frame counts
			forbids: func(op Operation, env Env) bool {
				return op.Kind == OpReflect && len(op.Frames) > 0 && env.Blacklisted(op.Frames[0].Unit)
			},
			reason: fixed("Illegal attempt to use reflection."),
		},
		DisableExternalExec: {
			forbids: func(op Operation, _ Env) bool { return op.Kind == OpExec },
			reason:  formatted("Illegal attempt to execute a resource: %s"),
		},
		DisableProtectedResourceAccess: {
			forbids: func(op Operation, env Env) bool {
				return op.Kind == OpFile && op.Target != "" && env.Protected(op.Target)
			},
			reason: formatted("Illegal attempt to access resource: %s"),
		},
		DisableNetwork: {
			forbids: func(op Operation, _ Env) bool { return op.Kind == OpConnect },
			reason:  formatted("Illegal attempt to open a network socket: %s"),
		},
	}
)

func fixed(msg string) func(Operation) string {
	return func(Operation) string { return msg }
}

func formatted(format string) func(Operation) string {
	return func(op Operation) string { return fmt.Sprintf(format, op.Target) }
}

// RegisterPolicy adds or replaces a policy kind. reason may be nil.
func RegisterPolicy(kind PolicyKind, forbids Predicate, reason func(Operation) string) {
	if reason == nil {
		reason = fixed(fmt.Sprintf("Illegal operation: %s", strings.ToLower(string(kind))))
	}
	policiesMu.Lock()
	defer policiesMu.Unlock()
	policies[kind] = policy{forbids: forbids, reason: reason}
}

func lookupPolicy(kind PolicyKind) (policy, bool) {
	policiesMu.RLock()
	defer policiesMu.RUnlock()
	p, ok := policies[kind]
	return p, ok
}

// KnownPolicies lists every registered policy kind in name order.
func KnownPolicies() []PolicyKind {
	policiesMu.RLock()
	defer policiesMu.RUnlock()
	kinds := make([]PolicyKind, 0, len(policies))
	for k := range policies {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DefaultPolicies is the restriction set installed for a grading run.
func DefaultPolicies() []PolicyKind {
	return []PolicyKind{
		DisableTerminate,
		DisableWildcardFileAccess,
		DisableSandboxTamper,
		DisableReflection,
		DisableExternalExec,
		DisableProtectedResourceAccess,
		DisableNetwork,
	}
}

// ParsePolicy resolves a policy name as written in configuration files.
func ParsePolicy(name string) (PolicyKind, bool) {
	kind := PolicyKind(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := lookupPolicy(kind)
	return kind, ok
}
