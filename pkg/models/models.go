package models

import (
	"strings"
	"time"

	"github.com/sempr/studenttester-go/pkg/constants"
)

// Status is the outcome category of one test.
type Status int

const (
	Passed  Status = constants.ST_PASSED
	Failed  Status = constants.ST_FAILED
	Skipped Status = constants.ST_SKIPPED
)

func (s Status) String() string { return constants.GetStatusName(int(s)) }

// ReportMode controls how much per-test detail a suite renders.
type ReportMode int

const (
	Normal     ReportMode = constants.RM_NORMAL
	Verbose    ReportMode = constants.RM_VERBOSE
	MaxVerbose ReportMode = constants.RM_MAXVERBOSE
	Anonymous  ReportMode = constants.RM_ANONYMOUS
	Muted      ReportMode = constants.RM_MUTED
)

func (m ReportMode) String() string { return constants.GetReportModeName(int(m)) }

// ParseReportMode accepts the mode names case-insensitively; empty is NORMAL.
func ParseReportMode(s string) (ReportMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NORMAL":
		return Normal, true
	case "VERBOSE":
		return Verbose, true
	case "MAXVERBOSE":
		return MaxVerbose, true
	case "ANONYMOUS":
		return Anonymous, true
	case "MUTED":
		return Muted, true
	}
	return Normal, false
}

// MarshalText lets report modes appear by name in TOML, YAML and JSON.
func (m ReportMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ReportMode) UnmarshalText(b []byte) error {
	v, ok := ParseReportMode(string(b))
	if !ok {
		return &UnknownModeError{Mode: string(b)}
	}
	*m = v
	return nil
}

type UnknownModeError struct{ Mode string }

func (e *UnknownModeError) Error() string { return "unknown report mode " + e.Mode }

// Gradeable is the per-test grading metadata. A test without one is graded
// with DefaultGradeable.
type Gradeable struct {
	// Weight is nil when not given; such a test weighs 1.
	Weight                *int   `json:"weight,omitempty" yaml:"weight" toml:"weight"`
	Description           string `json:"description,omitempty" yaml:"description" toml:"description"`
	PrintExceptionMessage bool   `json:"print_exception_message,omitempty" yaml:"print_exception_message" toml:"print_exception_message"`
	PrintStackTrace       bool   `json:"print_stack_trace,omitempty" yaml:"print_stack_trace" toml:"print_stack_trace"`
}

// Weight returns a pointer to n, for Gradeable literals.
func Weight(n int) *int { return &n }

// Units is the weight the test counts with.
func (g Gradeable) Units() int {
	if g.Weight == nil {
		return 1
	}
	return *g.Weight
}

func DefaultGradeable() Gradeable { return Gradeable{Weight: Weight(1)} }

// GradeableOverride replaces only the fields it sets.
type GradeableOverride struct {
	Weight                *int    `yaml:"weight" toml:"weight"`
	Description           *string `yaml:"description" toml:"description"`
	PrintExceptionMessage *bool   `yaml:"print_exception_message" toml:"print_exception_message"`
	PrintStackTrace       *bool   `yaml:"print_stack_trace" toml:"print_stack_trace"`
}

// Apply overlays the override on the declared metadata, which may be nil.
func (o GradeableOverride) Apply(declared *Gradeable) Gradeable {
	g := DefaultGradeable()
	if declared != nil {
		g = *declared
	}
	if o.Weight != nil {
		g.Weight = Weight(*o.Weight)
	}
	if o.Description != nil {
		g.Description = *o.Description
	}
	if o.PrintExceptionMessage != nil {
		g.PrintExceptionMessage = *o.PrintExceptionMessage
	}
	if o.PrintStackTrace != nil {
		g.PrintStackTrace = *o.PrintStackTrace
	}
	return g
}

// NoIdentifier asks the aggregator to assign the next sequential identifier.
const NoIdentifier = -1

// ContextConfig is the per-class report configuration.
type ContextConfig struct {
	Mode           ReportMode `json:"mode" yaml:"mode" toml:"mode"`
	WelcomeMessage string     `json:"welcome_message,omitempty" yaml:"welcome_message" toml:"welcome_message"`
	Identifier     int        `json:"identifier" yaml:"identifier" toml:"identifier"`
}

func DefaultContextConfig() ContextConfig {
	return ContextConfig{Mode: Normal, Identifier: NoIdentifier}
}

// Thrown describes the error that failed or skipped a test.
type Thrown struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	// Policy is the violated sandbox policy, when the error was a violation.
	Policy string `json:"policy,omitempty"`
}

func (t *Thrown) String() string {
	if t == nil {
		return ""
	}
	if t.Message == "" {
		return t.Type
	}
	return t.Type + ": " + t.Message
}

// TestOutcome is the raw result of one executed (or skipped) test.
type TestOutcome struct {
	Suite     string     `json:"suite"`
	TestID    string     `json:"test_id"`
	Status    Status     `json:"status"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Meta      *Gradeable `json:"meta,omitempty"`
	Thrown    *Thrown    `json:"thrown,omitempty"`
	DependsOn []string   `json:"depends_on,omitempty"`
}

// Duration is the wall time of the test, zero for skipped tests.
func (o *TestOutcome) Duration() time.Duration {
	if o.End.Before(o.Start) {
		return 0
	}
	return o.End.Sub(o.Start)
}

// SuiteResult is the weighted outcome of one test class.
type SuiteResult struct {
	Identifier     int           `json:"code"`
	Name           string        `json:"name"`
	Mode           ReportMode    `json:"mode"`
	WelcomeMessage string        `json:"welcome_message,omitempty"`
	Outcomes       []TestOutcome `json:"-"`
	PassedWeight   int           `json:"passed_weight"`
	TotalWeight    int           `json:"total_weight"`
	Percent        float64       `json:"percent"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	// Text is the human-readable block of the suite.
	Text string `json:"-"`
	// Diagnostics is only shown in the machine-readable report.
	Diagnostics string `json:"output"`
}

// OverallResult is the product of one grading run.
type OverallResult struct {
	Suites         []SuiteResult `json:"results"`
	PassedWeight   int           `json:"-"`
	TotalWeight    int           `json:"-"`
	Percent        float64       `json:"percent"`
	Text           string        `json:"-"`
	CapturedOutput string        `json:"output"`
	Incomplete     bool          `json:"incomplete,omitempty"`
}
