//go:build !linux

package daemon

import (
	"log/slog"
	"os/exec"
)

func prepareCommand(*exec.Cmd) {}

// setResourceLimits is a no-op where prlimit is unavailable.
func setResourceLimits(int, *Config) error {
	slog.Warn("Resource limits (rlimit) are not supported on this OS. Running without restrictions.")
	return nil
}
