package daemon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/sempr/studenttester-go/internal/report"
)

const STD_MB = 1048576

// Grader grades one submission.
type Grader interface {
	Grade(ctx context.Context, id int) (*report.Document, error)
}

// ProcessGrader runs each job as a "grade --json" child of this binary, so a
// submission that hangs or crashes takes down only its own process.
type ProcessGrader struct {
	cfg *Config
	// Exe is the binary to run; empty means the running executable.
	Exe string
}

func NewProcessGrader(cfg *Config) *ProcessGrader { return &ProcessGrader{cfg: cfg} }

func (g *ProcessGrader) args(id int) []string {
	testRoot, contentRoot := g.cfg.Roots(id)
	args := []string{"grade",
		"--test-root", testRoot,
		"--content-root", contentRoot,
		"--json",
	}
	if g.cfg.HarnessConfig != "" {
		args = append(args, "--config", g.cfg.path(g.cfg.HarnessConfig))
	}
	return args
}

func (g *ProcessGrader) Grade(ctx context.Context, id int) (*report.Document, error) {
	exe := g.Exe
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("could not find own executable: %w", err)
		}
	}
	if g.cfg.GradeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.GradeTimeout)
		defer cancel()
	}

	args := g.args(id)
	slog.Debug("starting grade process", "submission_id", id, "exe", exe, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = g.cfg.Home
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	prepareCommand(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start grade process: %w", err)
	}
	if err := setResourceLimits(cmd.Process.Pid, g.cfg); err != nil {
		slog.Warn("Failed to set resource limits", "submission_id", id, "err", err)
	}
	waitErr := cmd.Wait()

	doc, err := report.ReadJSON(&stdout)
	if err != nil {
		slog.Error("grade process produced no report", "submission_id", id,
			"err", waitErr, "stderr", tail(stderr.String(), 2048))
		if waitErr != nil {
			return nil, fmt.Errorf("grade process for %d failed: %w", id, waitErr)
		}
		return nil, err
	}
	if waitErr != nil {
		slog.Warn("grade process exited with error", "submission_id", id, "err", waitErr)
	}
	return doc, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
