//go:build linux

package daemon

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func prepareCommand(cmd *exec.Cmd) {
	// Pdeathsig makes sure the child dies with the daemon.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
		Setpgid:   true,
	}
}

// setResourceLimits bounds a running grade process.
func setResourceLimits(pid int, cfg *Config) error {
	setRlimit := func(resource int, value uint64) error {
		return unix.Prlimit(pid, resource, &unix.Rlimit{Cur: value, Max: value}, nil)
	}

	if cfg.CPULimit > 0 {
		if err := setRlimit(unix.RLIMIT_CPU, cfg.CPULimit); err != nil {
			return fmt.Errorf("failed to set RLIMIT_CPU: %w", err)
		}
	}
	if err := setRlimit(unix.RLIMIT_FSIZE, 1024*STD_MB); err != nil {
		return fmt.Errorf("failed to set RLIMIT_FSIZE: %w", err)
	}
	if cfg.MemLimitMB > 0 {
		if err := setRlimit(unix.RLIMIT_AS, cfg.MemLimitMB*STD_MB); err != nil {
			return fmt.Errorf("failed to set RLIMIT_AS: %w", err)
		}
	}
	return nil
}
