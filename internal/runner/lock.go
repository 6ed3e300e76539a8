package runner

import (
	"sync/atomic"

	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

// running is held for the whole of a grading run; the sandbox and the
// process stdout cannot be shared between two runs.
var running atomic.Bool

func acquire() error {
	if !running.CompareAndSwap(false, true) {
		return pkgerrors.New(pkgerrors.AlreadyRunning)
	}
	return nil
}

func release() { running.Store(false) }

// Running reports whether a grading run is active in this process.
func Running() bool { return running.Load() }
