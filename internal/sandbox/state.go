package sandbox

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

// ErrNotInstalled is returned by mutators called outside a grading run.
var ErrNotInstalled = pkgerrors.New(pkgerrors.ConfigurationError).WithMessage("sandbox is not installed")

// State is the sandbox of one grading run: the blacklisted code units, the
// active policies and the protected resource names. It is either fully
// installed or fully restored.
type State struct {
	mu        sync.RWMutex
	installed bool
	blacklist map[CodeUnit]struct{}
	policies  map[PolicyKind]struct{}
	protected map[string]struct{}
}

func New() *State {
	return &State{
		blacklist: make(map[CodeUnit]struct{}),
		policies:  make(map[PolicyKind]struct{}),
		protected: make(map[string]struct{}),
	}
}

// Install replaces all three sets and activates checking.
func (s *State) Install(blacklist []CodeUnit, policies []PolicyKind, protected []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return pkgerrors.New(pkgerrors.ConfigurationError).WithMessage("sandbox is already installed")
	}

	bl := make(map[CodeUnit]struct{}, len(blacklist))
	for _, u := range blacklist {
		bl[u] = struct{}{}
	}
	ps := make(map[PolicyKind]struct{}, len(policies))
	for _, p := range policies {
		if _, ok := lookupPolicy(p); !ok {
			return pkgerrors.Newf(pkgerrors.ConfigurationError, "unknown policy %s", p)
		}
		ps[p] = struct{}{}
	}
	pr := make(map[string]struct{}, len(protected))
	for _, name := range protected {
		if name != "" {
			pr[name] = struct{}{}
		}
	}

	s.blacklist, s.policies, s.protected = bl, ps, pr
	s.installed = true
	slog.Debug("sandbox installed", "blacklist", len(bl), "policies", len(ps), "protected", len(pr))
	return nil
}

// Uninstall clears every set and deactivates checking. Safe to call twice.
func (s *State) Uninstall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		slog.Debug("sandbox restored")
	}
	s.installed = false
	s.blacklist = make(map[CodeUnit]struct{})
	s.policies = make(map[PolicyKind]struct{})
	s.protected = make(map[string]struct{})
}

func (s *State) Installed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.installed
}

// Check decides op. Only operations with at least one blacklisted frame are
// evaluated; every active policy is consulted and the first violation by
// policy name is returned.
func (s *State) Check(op Operation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.installed {
		return nil
	}
	env := view{s}
	if !env.attributable(op.Frames) {
		return nil
	}

	var first *Violation
	for _, kind := range sortedKinds(s.policies) {
		p, ok := lookupPolicy(kind)
		if !ok || !p.forbids(op, env) {
			continue
		}
		v := &Violation{Policy: kind, Op: op, Reason: p.reason(op)}
		slog.Warn("sandbox violation", "policy", kind, "op", op.String(), "frames", framesString(op.Frames))
		if first == nil {
			first = v
		}
	}
	if first != nil {
		return first
	}
	return nil
}

// Blacklisted reports whether unit is subject to checks.
func (s *State) Blacklisted(unit CodeUnit) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{s}.Blacklisted(unit)
}

func (s *State) AddToBlacklist(ctx context.Context, unit CodeUnit) error {
	return s.mutate(ctx, "blacklist.add "+string(unit), func() { s.blacklist[unit] = struct{}{} })
}

func (s *State) RemoveFromBlacklist(ctx context.Context, unit CodeUnit) error {
	return s.mutate(ctx, "blacklist.remove "+string(unit), func() { delete(s.blacklist, unit) })
}

func (s *State) AddPolicy(ctx context.Context, kind PolicyKind) error {
	if _, ok := lookupPolicy(kind); !ok {
		return pkgerrors.Newf(pkgerrors.ConfigurationError, "unknown policy %s", kind)
	}
	return s.mutate(ctx, "policy.add "+string(kind), func() { s.policies[kind] = struct{}{} })
}

func (s *State) RemovePolicy(ctx context.Context, kind PolicyKind) error {
	return s.mutate(ctx, "policy.remove "+string(kind), func() { delete(s.policies, kind) })
}

func (s *State) AddProtectedResource(ctx context.Context, name string) error {
	return s.mutate(ctx, "protected.add "+name, func() { s.protected[name] = struct{}{} })
}

func (s *State) RemoveProtectedResource(ctx context.Context, name string) error {
	return s.mutate(ctx, "protected.remove "+name, func() { delete(s.protected, name) })
}

// mutate applies fn unless the change is itself a forbidden tamper attempt.
func (s *State) mutate(ctx context.Context, action string, fn func()) error {
	if err := s.Check(NewOperation(ctx, OpTamper, action)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		return ErrNotInstalled
	}
	fn()
	return nil
}

// Snapshot is a copy of the sandbox sets.
type Snapshot struct {
	Installed bool
	Blacklist []CodeUnit
	Policies  []PolicyKind
	Protected []string
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Installed: s.installed, Policies: sortedKinds(s.policies)}
	for u := range s.blacklist {
		snap.Blacklist = append(snap.Blacklist, u)
	}
	sort.Slice(snap.Blacklist, func(i, j int) bool { return snap.Blacklist[i] < snap.Blacklist[j] })
	for name := range s.protected {
		snap.Protected = append(snap.Protected, name)
	}
	sort.Strings(snap.Protected)
	return snap
}

// view reads the sets of a State whose lock is already held.
type view struct{ s *State }

func (v view) Blacklisted(unit CodeUnit) bool {
	_, ok := v.s.blacklist[unit]
	return ok
}

func (v view) Protected(target string) bool {
	for name := range v.s.protected {
		if strings.Contains(target, name) {
			return true
		}
	}
	return false
}

func (v view) attributable(frames []Frame) bool {
	for _, f := range frames {
		if v.Blacklisted(f.Unit) {
			return true
		}
	}
	return false
}

func sortedKinds(set map[PolicyKind]struct{}) []PolicyKind {
	kinds := make([]PolicyKind, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func framesString(frames []Frame) string {
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = f.String()
	}
	return strings.Join(parts, " <- ")
}
