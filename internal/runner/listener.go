package runner

import (
	"io"
	"log/slog"

	"github.com/sempr/studenttester-go/internal/capture"
	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/pkg/models"
)

// MuteListener silences stdout while a test body runs. With To set, the
// output is sent there instead of discarded.
type MuteListener struct {
	Out   *capture.Stdout
	To    io.Writer
	muted bool
}

func (m *MuteListener) SuiteStart(*engine.Suite) {}

func (m *MuteListener) TestStart(s *engine.Suite, t *engine.Test) {
	var err error
	if m.To != nil {
		err = m.Out.Divert(m.To)
	} else {
		err = m.Out.Mute()
	}
	if err != nil {
		slog.Warn("could not mute test output", "suite", s.Name, "test", t.Name, "err", err)
		return
	}
	m.muted = true
}

func (m *MuteListener) TestFinish(s *engine.Suite, o models.TestOutcome) {
	if !m.muted {
		return
	}
	m.muted = false
	if err := m.Out.Unmute(); err != nil {
		slog.Warn("could not unmute output", "suite", s.Name, "test", o.TestID, "err", err)
	}
}

func (m *MuteListener) SuiteFinish(*engine.Suite) {}
