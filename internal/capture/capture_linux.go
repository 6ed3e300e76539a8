//go:build linux

package capture

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// swapStdout points file descriptor 1 at f and returns a duplicate of the
// previous stdout.
func swapStdout(f *os.File) (*os.File, error) {
	stdout := int(os.Stdout.Fd())
	fd, err := unix.Dup(stdout)
	if err != nil {
		return nil, fmt.Errorf("could not dup stdout: %w", err)
	}
	if err := unix.Dup2(int(f.Fd()), stdout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("could not redirect stdout: %w", err)
	}
	return os.NewFile(uintptr(fd), "/dev/stdout"), nil
}

func restoreStdout(orig *os.File) error {
	defer orig.Close()
	if err := unix.Dup2(int(orig.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("could not restore stdout: %w", err)
	}
	return nil
}
