package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sempr/studenttester-go/internal/sandbox"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

// Discover lists the source files under root whose extension is in exts, as
// slash-separated paths relative to root, sorted.
func Discover(root string, exts []string) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not scan %s", root)
	}
	sort.Strings(files)
	return files, nil
}

// UnitName maps a source path relative to its root to the code unit it
// declares: "example/CalculatorTest.go" is "example.CalculatorTest".
func UnitName(rel string) sandbox.CodeUnit {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return sandbox.CodeUnit(strings.ReplaceAll(strings.Trim(rel, "/"), "/", "."))
}

// ProtectedNames returns the resource names of the test sources: each base
// name plus its compiled forms.
func ProtectedNames(testFiles []string, artifactExts []string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, f := range testFiles {
		base := filepath.Base(filepath.FromSlash(f))
		add(base)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		for _, ext := range artifactExts {
			add(stem + ext)
		}
	}
	sort.Strings(names)
	return names
}

func requireDir(role, path string) error {
	if path == "" {
		return pkgerrors.Newf(pkgerrors.ConfigurationError, "%s is not set", role)
	}
	st, err := os.Stat(path)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not find %s folder: %s", role, path)
	}
	if !st.IsDir() {
		return pkgerrors.Newf(pkgerrors.ConfigurationError, "%s is not a folder: %s", role, path)
	}
	return nil
}
