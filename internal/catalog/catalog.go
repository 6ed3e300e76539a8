// Package catalog registers a sample submission and its test classes with
// the default engine registry, and can lay their sources out on disk.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

var (
	//go:embed calculator.go
	calculatorSrc []byte
	//go:embed basics.go
	basicsSrc []byte
	//go:embed order.go
	orderSrc []byte
)

// Materialize writes the demo tree under dir and returns its test and
// content roots.
func Materialize(dir string) (testRoot, contentRoot string, err error) {
	testRoot = filepath.Join(dir, "test")
	contentRoot = filepath.Join(dir, "content")
	files := map[string][]byte{
		filepath.Join(contentRoot, "example", "Calculator.go"):       calculatorSrc,
		filepath.Join(testRoot, "example", "CalculatorTest.go"):      basicsSrc,
		filepath.Join(testRoot, "example", "CalculatorOrderTest.go"): orderSrc,
	}
	for path, data := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", "", fmt.Errorf("could not create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", "", fmt.Errorf("could not write %s: %w", path, err)
		}
	}
	return testRoot, contentRoot, nil
}
