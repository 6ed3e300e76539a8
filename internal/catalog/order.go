package catalog

import (
	"time"

	"github.com/sempr/studenttester-go/internal/api"
	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/internal/sandbox"
	"github.com/sempr/studenttester-go/pkg/models"
)

const CalculatorOrderTest sandbox.CodeUnit = "example.CalculatorOrderTest"

func init() {
	engine.Register(&engine.Class{
		Name: CalculatorOrderTest,
		Tests: []engine.Test{
			{Name: "testDivide", Framework: engine.TestNG, Timeout: time.Second,
				Func: func(t *engine.T) {
					if got, err := Divide(7, 2); err != nil || got != 3 {
						t.Fatalf("Divide(7, 2) = %d, %v", got, err)
					}
					api.From(t.Context()).LogPrivate("integer division checked")
				}},
			{Name: "testChain", Framework: engine.TestNG, DependsOn: []string{"testDivide", "testCheat"},
				Func: func(t *engine.T) {}},
			{Name: "testCheat", Framework: engine.TestNG, Meta: &models.Gradeable{Weight: models.Weight(3), Description: "the submission must not read the tests"},
				Func: func(t *engine.T) {
					if _, err := LoadAnswers(t.Context(), "CalculatorOrderTest.go"); err != nil {
						t.Fatal(err)
					}
				}},
		},
	})
}
