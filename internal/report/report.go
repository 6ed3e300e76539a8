// Package report writes a graded run as text or as the JSON document
// consumed by course tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/sempr/studenttester-go/pkg/models"
)

const (
	TypeCode = "code"
	TypeTest = "test"
)

type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Result is one graded suite as it appears in the document.
type Result struct {
	Name    string  `json:"name"`
	Code    int     `json:"code"`
	Percent float64 `json:"percent"`
	Output  string  `json:"output"`
}

type Document struct {
	RunID      string   `json:"runId"`
	Percent    float64  `json:"percent"`
	Results    []Result `json:"results"`
	Output     string   `json:"output"`
	Source     []File   `json:"source"`
	TestSource []File   `json:"testSource"`
	Incomplete bool     `json:"incomplete,omitempty"`
}

// Build assembles the document. overall may be nil when testing did not run;
// output is everything the harness printed.
func Build(overall *models.OverallResult, output string, sources, testSources []string) *Document {
	doc := &Document{
		RunID:      uuid.NewString(),
		Results:    []Result{},
		Output:     output,
		Source:     readFiles(sources, TypeCode),
		TestSource: readFiles(testSources, TypeTest),
	}
	if overall == nil {
		return doc
	}
	doc.Percent = overall.Percent
	doc.Incomplete = overall.Incomplete
	for _, s := range overall.Suites {
		doc.Results = append(doc.Results, Result{
			Name:    s.Name,
			Code:    s.Identifier,
			Percent: s.Percent,
			Output:  s.Diagnostics,
		})
	}
	return doc
}

func readFiles(paths []string, typ string) []File {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("could not add file to report", "path", p, "err", err)
			continue
		}
		slog.Debug("adding file to report", "path", p)
		files = append(files, File{Path: p, Content: string(data), Type: typ})
	}
	return files
}

// WriteText writes the human-readable report.
func WriteText(w io.Writer, overall *models.OverallResult) error {
	if overall == nil {
		return nil
	}
	_, err := io.WriteString(w, overall.Text)
	return err
}

func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("could not encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the document to path, replacing it.
func WriteJSONFile(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	if err := WriteJSON(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON decodes a document written by WriteJSON.
func ReadJSON(r io.Reader) (*Document, error) {
	doc := &Document{}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("could not decode report: %w", err)
	}
	return doc, nil
}
