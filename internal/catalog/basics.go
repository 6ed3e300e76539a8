package catalog

import (
	"errors"

	"github.com/sempr/studenttester-go/internal/api"
	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/models"
)

const CalculatorTest sandbox.CodeUnit = "example.CalculatorTest"

func init() {
	engine.Register(&engine.Class{
		Name: CalculatorTest,
		Config: &models.ContextConfig{
			Mode:           models.Verbose,
			WelcomeMessage: "Calculator basics",
			Identifier:     models.NoIdentifier,
		},
		Tests: []engine.Test{
			{Name: "testAdd", Framework: engine.JUnit, Meta: &models.Gradeable{Weight: models.Weight(2), Description: "adds two numbers"},
				Func: func(t *engine.T) {
					if got := Add(2, 3); got != 5 {
						t.Errorf("Add(2, 3) = %d, want 5", got)
					}
					api.From(t.Context()).LogPublic("Add(2, 3) checked")
				}},
			{Name: "testDivideByZero", Framework: engine.JUnit, Meta: &models.Gradeable{Weight: models.Weight(1), PrintExceptionMessage: true},
				Func: func(t *engine.T) {
					if _, err := Divide(1, 0); !errors.Is(err, ErrDivideByZero) {
						t.Errorf("Divide(1, 0) error = %v, want ErrDivideByZero", err)
					}
				}},
			{Name: "testShutdown", Framework: engine.JUnit,
				Func: func(t *engine.T) {
					if err := Shutdown(t.Context()); err != nil {
						t.Fatal(err)
					}
				}},
		},
	})
}
