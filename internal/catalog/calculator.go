package catalog

import (
	"context"
	"errors"

	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/internal/guard"
	"github.com/sempr/studenttester-go/internal/sandbox"
)

// Calculator is the sample submission.
const Calculator sandbox.CodeUnit = "example.Calculator"

var ErrDivideByZero = errors.New("divide by zero")

func Add(a, b int) int { return a + b }

func Divide(a, b int) (int, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

// Shutdown is the kind of call the sandbox exists for: a submission that
// exits the process when it is done.
func Shutdown(ctx context.Context) error {
	return guard.Exit(sandbox.Enter(ctx, Calculator, "Shutdown"), 0)
}

// LoadAnswers tries to read the grading tests.
func LoadAnswers(ctx context.Context, path string) ([]byte, error) {
	return guard.ReadFile(sandbox.Enter(ctx, Calculator, "LoadAnswers"), path)
}

func init() {
	engine.RegisterUnit(Calculator)
}
