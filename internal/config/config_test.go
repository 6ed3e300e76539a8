package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sempr/studenttester-go/internal/sandbox"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
	"github.com/sempr/studenttester-go/pkg/models"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadHarness(t *testing.T) {
	path := write(t, "harness.toml", `
[compiler]
command = "go"
args = ["vet", "{options}", "{sources}"]
options = "-tags 'integration slow'"
separately = true

[run]
default_timeout = "250ms"
policies = ["disable_terminate", "DISABLE_NETWORK"]
mute_overall = true
`)
	h, err := LoadHarness(path)
	if err != nil {
		t.Fatalf("LoadHarness() error = %v", err)
	}
	if h.Compiler.Command != "go" || !h.Compiler.Separately || len(h.Compiler.Args) != 3 {
		t.Errorf("compiler = %+v", h.Compiler)
	}
	if d, _ := h.Timeout(); d != 250*time.Millisecond {
		t.Errorf("Timeout() = %v", d)
	}
	kinds, _ := h.PolicyKinds()
	if len(kinds) != 2 || kinds[0] != sandbox.DisableTerminate || kinds[1] != sandbox.DisableNetwork {
		t.Errorf("PolicyKinds() = %v", kinds)
	}
	if !h.Run.MuteOverall {
		t.Error("mute_overall not read")
	}
	if len(h.Run.SourceExts) != 1 || h.Run.SourceExts[0] != ".go" {
		t.Errorf("defaults lost: %v", h.Run.SourceExts)
	}
}

func TestLoadHarnessErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[run\n"},
		{"timeout", "[run]\ndefault_timeout = \"soon\"\n"},
		{"policy", "[run]\npolicies = [\"DISABLE_EVERYTHING\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHarness(write(t, "h.toml", tt.content))
			if !pkgerrors.Is(err, pkgerrors.ConfigurationError) {
				t.Errorf("LoadHarness() error = %v, want ConfigurationError", err)
			}
		})
	}
	if _, err := LoadHarness(filepath.Join(t.TempDir(), "missing.toml")); !pkgerrors.Is(err, pkgerrors.ConfigurationError) {
		t.Errorf("missing file error = %v", err)
	}
	h, err := LoadHarness("")
	if err != nil || len(h.Run.Policies) != 0 {
		t.Errorf("LoadHarness(\"\") = %+v, %v", h, err)
	}
	if kinds, _ := h.PolicyKinds(); len(kinds) != len(sandbox.DefaultPolicies()) {
		t.Errorf("default policies = %v", kinds)
	}
}

func TestLoadSuite(t *testing.T) {
	yamlDoc := `
classes:
  - name: example.CalculatorTest
    mode: verbose
    welcome_message: Calculator tests
    identifier: 0
    tests:
      testAdd:
        weight: 3
        description: adds numbers
  - name: example.QuitTest
`
	tomlDoc := `
[[classes]]
name = "example.CalculatorTest"
mode = "VERBOSE"
welcome_message = "Calculator tests"
identifier = 0

[classes.tests.testAdd]
weight = 3
description = "adds numbers"

[[classes]]
name = "example.QuitTest"
`
	for name, content := range map[string]string{"suite.yaml": yamlDoc, "suite.toml": tomlDoc} {
		t.Run(name, func(t *testing.T) {
			doc, err := LoadSuite(write(t, name, content))
			if err != nil {
				t.Fatalf("LoadSuite() error = %v", err)
			}
			if len(doc.Classes) != 2 {
				t.Fatalf("classes = %+v", doc.Classes)
			}
			c := doc.Classes[0]
			cfg := c.Apply(models.DefaultContextConfig())
			if cfg.Mode != models.Verbose || cfg.Identifier != 0 || cfg.WelcomeMessage != "Calculator tests" {
				t.Errorf("Apply() = %+v", cfg)
			}
			if g := c.Tests["testAdd"]; g.Weight == nil || *g.Weight != 3 || g.Description == nil || *g.Description != "adds numbers" {
				t.Errorf("testAdd = %+v", g)
			}
			if cfg := doc.Classes[1].Apply(models.DefaultContextConfig()); cfg != models.DefaultContextConfig() {
				t.Errorf("empty entry changed config: %+v", cfg)
			}
		})
	}
}

func TestLoadSuiteInvalid(t *testing.T) {
	tests := map[string]string{
		"no name":    "classes:\n  - mode: NORMAL\n",
		"duplicate":  "classes:\n  - name: a\n  - name: a\n",
		"bad mode":   "classes:\n  - name: a\n    mode: LOUD\n",
		"bad weight": "classes:\n  - name: a\n    tests:\n      t:\n        weight: -2\n",
		"bad id":     "classes:\n  - name: a\n    identifier: -5\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadSuite(write(t, "suite.yml", content)); !pkgerrors.Is(err, pkgerrors.ConfigurationError) {
				t.Errorf("LoadSuite() error = %v, want ConfigurationError", err)
			}
		})
	}
}
