package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sempr/studenttester-go/internal/guard"
	"github.com/sempr/studenttester-go/internal/report"
	"github.com/sempr/studenttester-go/pkg/constants"
	"github.com/sempr/studenttester-go/pkg/models"
)

func TestGradeDemoText(t *testing.T) {
	prev := guard.SetExitFunc(func(int) { t.Error("demo exited the process") })
	defer guard.SetExitFunc(prev)

	var out bytes.Buffer
	if code := runGrade(context.Background(), models.GradeArgs{Demo: true}, &out); code != constants.EXIT_OK {
		t.Fatalf("exit code = %d, output:\n%s", code, out.String())
	}
	for _, want := range []string{"TEST RESULTS\n\n", "example.CalculatorTest (JUnit)", "Calculator basics"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestGradeDemoJSON(t *testing.T) {
	tests := []struct {
		name  string
		file  bool
		quiet bool
	}{
		{name: "stdout"},
		{name: "file", file: true},
		{name: "quiet", quiet: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := models.GradeArgs{Demo: true, JSONOutput: true, Quiet: tt.quiet}
			if tt.file {
				a.JSONFile = filepath.Join(t.TempDir(), "report.json")
			}
			var out bytes.Buffer
			if code := runGrade(context.Background(), a, &out); code != constants.EXIT_OK {
				t.Fatalf("exit code = %d", code)
			}
			if tt.quiet {
				if out.Len() != 0 {
					t.Errorf("quiet printed %q", out.String())
				}
				return
			}
			src := &out
			if tt.file {
				if out.Len() != 0 {
					t.Errorf("stdout not empty with json file: %q", out.String())
				}
				data, err := os.ReadFile(a.JSONFile)
				if err != nil {
					t.Fatal(err)
				}
				src = bytes.NewBuffer(data)
			}
			doc, err := report.ReadJSON(src)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(doc.Percent-400.0/9) > 0.01 || len(doc.Results) != 2 {
				t.Errorf("doc = %+v", doc)
			}
			if !strings.HasPrefix(doc.Output, "TEST RESULTS") || len(doc.Source) != 1 || len(doc.TestSource) != 2 {
				t.Errorf("output = %q, sources = %d/%d", doc.Output, len(doc.Source), len(doc.TestSource))
			}
		})
	}
}

func TestGradeBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.toml")
	if err := os.WriteFile(path, []byte("[run]\ndefault_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := runGrade(context.Background(), models.GradeArgs{Demo: true, ConfigFile: path}, &bytes.Buffer{}); code != constants.EXIT_CONFIG {
		t.Errorf("exit code = %d, want %d", code, constants.EXIT_CONFIG)
	}
	if code := runGrade(context.Background(), models.GradeArgs{}, &bytes.Buffer{}); code != constants.EXIT_CONFIG {
		t.Errorf("missing roots: exit code = %d, want %d", code, constants.EXIT_CONFIG)
	}
}
