//go:build !linux

package capture

import (
	"log/slog"
	"os"
)

// Without dup2 only writers that look up os.Stdout at write time are captured.
func swapStdout(f *os.File) (*os.File, error) {
	slog.Debug("fd level stdout redirection is not supported on this OS, swapping os.Stdout")
	orig := os.Stdout
	os.Stdout = f
	return orig, nil
}

func restoreStdout(orig *os.File) error {
	os.Stdout = orig
	return nil
}
