package engine

import (
	"fmt"
	"io"

	"github.com/sempr/studenttester-go/pkg/models"
)

// Listener receives engine events. Calls happen on the engine goroutine, in
// order.
type Listener interface {
	SuiteStart(s *Suite)
	TestStart(s *Suite, t *Test)
	TestFinish(s *Suite, o models.TestOutcome)
	SuiteFinish(s *Suite)
}

// ProgressListener is the built-in listener: one line per finished test.
type ProgressListener struct {
	Out io.Writer
}

func (p *ProgressListener) SuiteStart(s *Suite) {
	fmt.Fprintf(p.Out, "===== %s =====\n", s.Name)
}

func (p *ProgressListener) TestStart(*Suite, *Test) {}

func (p *ProgressListener) TestFinish(s *Suite, o models.TestOutcome) {
	fmt.Fprintf(p.Out, "%s: %s (%s)\n", o.Status, o.TestID, o.Duration())
}

func (p *ProgressListener) SuiteFinish(s *Suite) {
	fmt.Fprintf(p.Out, "===== %s done =====\n", s.Name)
}
