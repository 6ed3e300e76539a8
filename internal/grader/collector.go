package grader

import (
	"sync"
	"time"

	"github.com/sempr/studenttester-go/internal/engine"
	"github.com/sempr/studenttester-go/pkg/models"
)

// SuiteRun is the raw record of one executed suite.
type SuiteRun struct {
	Name     string
	Unit     string
	Config   models.ContextConfig
	Outcomes []models.TestOutcome
	End      time.Time
}

// Collector is the engine listener that records results for Aggregate.
type Collector struct {
	mu      sync.Mutex
	runs    []*SuiteRun
	current map[*engine.Suite]*SuiteRun
	now     func() time.Time
}

func NewCollector() *Collector {
	return &Collector{current: make(map[*engine.Suite]*SuiteRun), now: time.Now}
}

func (c *Collector) SuiteStart(s *engine.Suite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &SuiteRun{Name: s.Name, Unit: string(s.Class.Name), Config: s.Config}
	c.current[s] = r
	c.runs = append(c.runs, r)
}

func (c *Collector) TestStart(*engine.Suite, *engine.Test) {}

func (c *Collector) TestFinish(s *engine.Suite, o models.TestOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.current[s]; ok {
		r.Outcomes = append(r.Outcomes, o)
	}
}

func (c *Collector) SuiteFinish(s *engine.Suite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.current[s]; ok {
		r.End = c.now()
		delete(c.current, s)
	}
}

// Runs returns the recorded suites in execution order.
func (c *Collector) Runs() []SuiteRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SuiteRun, len(c.runs))
	for i, r := range c.runs {
		out[i] = *r
		out[i].Outcomes = append([]models.TestOutcome(nil), r.Outcomes...)
	}
	return out
}
