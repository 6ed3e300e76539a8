package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sempr/studenttester-go/internal/sandbox"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

// Framework is the test dialect a test method was declared in.
type Framework int

const (
	// JUnit tests run in declaration order and have no dependencies.
	JUnit Framework = iota + 1
	// TestNG tests may depend on other tests of the same class.
	TestNG
)

func (f Framework) String() string {
	switch f {
	case JUnit:
		return "JUnit"
	case TestNG:
		return "TestNG"
	default:
		return "unknown"
	}
}

type ClassKind int

const (
	ClassNotTest ClassKind = iota
	ClassJUnit
	ClassTestNG
	ClassMixed
)

func (k ClassKind) String() string {
	return [...]string{"not a test class", "JUnit", "TestNG", "mixed"}[k]
}

// Test is one test method.
type Test struct {
	Name      string
	Framework Framework
	Func      func(t *T)
	// Timeout overrides the engine default when positive.
	Timeout   time.Duration
	DependsOn []string
	// Meta is nil when the test declares no grading metadata.
	Meta *models.Gradeable
}

// Class is a test class: a code unit holding test methods.
type Class struct {
	Name   sandbox.CodeUnit
	Tests  []Test
	Config *models.ContextConfig
}

// Classify decides which dialect the class is written in.
func (c *Class) Classify() ClassKind {
	var junit, testng bool
	for _, t := range c.Tests {
		switch t.Framework {
		case JUnit:
			junit = true
		case TestNG:
			testng = true
		}
	}
	switch {
	case junit && testng:
		return ClassMixed
	case junit:
		return ClassJUnit
	case testng:
		return ClassTestNG
	default:
		return ClassNotTest
	}
}

// Validate checks test names and dependencies.
func (c *Class) Validate() error {
	index := make(map[string]int, len(c.Tests))
	for i, t := range c.Tests {
		if t.Name == "" || t.Func == nil {
			return pkgerrors.Newf(pkgerrors.EngineFailure, "%s: test %d has no name or body", c.Name, i)
		}
		if _, dup := index[t.Name]; dup {
			return pkgerrors.Newf(pkgerrors.EngineFailure, "%s: duplicate test %s", c.Name, t.Name)
		}
		index[t.Name] = i
	}
	if c.Classify() != ClassTestNG {
		return nil
	}
	for _, t := range c.Tests {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				return pkgerrors.Newf(pkgerrors.EngineFailure, "%s: %s depends on unknown test %s", c.Name, t.Name, dep)
			}
		}
	}
	if _, err := c.plan(); err != nil {
		return err
	}
	return nil
}

// plan orders tests so that dependencies run first, keeping declaration
// order otherwise.
func (c *Class) plan() ([]*Test, error) {
	if c.Classify() != ClassTestNG {
		out := make([]*Test, len(c.Tests))
		for i := range c.Tests {
			out[i] = &c.Tests[i]
		}
		return out, nil
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(c.Tests))
	byName := make(map[string]*Test, len(c.Tests))
	for i := range c.Tests {
		byName[c.Tests[i].Name] = &c.Tests[i]
	}
	var out []*Test
	var visit func(t *Test, path []string) error
	visit = func(t *Test, path []string) error {
		switch state[t.Name] {
		case visited:
			return nil
		case visiting:
			return pkgerrors.Newf(pkgerrors.EngineFailure, "%s: dependency cycle %s",
				c.Name, strings.Join(append(path, t.Name), " -> "))
		}
		state[t.Name] = visiting
		next := append(append([]string(nil), path...), t.Name)
		for _, dep := range t.DependsOn {
			d, ok := byName[dep]
			if !ok {
				continue
			}
			if err := visit(d, next); err != nil {
				return err
			}
		}
		state[t.Name] = visited
		out = append(out, t)
		return nil
	}
	for i := range c.Tests {
		if err := visit(&c.Tests[i], nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ErrClassNotFound is returned by a Loader for unknown code units.
var ErrClassNotFound = pkgerrors.New(pkgerrors.EngineFailure).WithMessage("class not found")

// Loader resolves code units to classes.
type Loader interface {
	// Lookup returns the test class registered under name.
	Lookup(name sandbox.CodeUnit) (*Class, error)
	// Load confirms that name is a known unit, test class or not.
	Load(name sandbox.CodeUnit) error
}

// Registry is an in-process Loader filled at init time.
type Registry struct {
	mu      sync.RWMutex
	classes map[sandbox.CodeUnit]*Class
	units   map[sandbox.CodeUnit]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[sandbox.CodeUnit]*Class),
		units:   make(map[sandbox.CodeUnit]struct{}),
	}
}

// Default is the process-wide registry catalog packages register into.
var Default = NewRegistry()

// Register adds c to the default registry.
func Register(c *Class) { Default.Register(c) }

// RegisterUnit declares submission units on the default registry.
func RegisterUnit(names ...sandbox.CodeUnit) { Default.RegisterUnit(names...) }

// Register adds a test class. It panics if the name is taken, like
// registering a sql driver twice.
func (r *Registry) Register(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c == nil || c.Name == "" {
		panic("engine: Register class with empty name")
	}
	if _, dup := r.classes[c.Name]; dup {
		panic("engine: Register called twice for class " + string(c.Name))
	}
	r.classes[c.Name] = c
	r.units[c.Name] = struct{}{}
}

func (r *Registry) RegisterUnit(names ...sandbox.CodeUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.units[n] = struct{}{}
	}
}

func (r *Registry) Lookup(name sandbox.CodeUnit) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}
	return c, nil
}

func (r *Registry) Load(name sandbox.CodeUnit) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.units[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}
	return nil
}

// Units lists every registered unit in name order.
func (r *Registry) Units() []sandbox.CodeUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sandbox.CodeUnit, 0, len(r.units))
	for u := range r.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
