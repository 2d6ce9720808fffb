package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/furrowlabs/furrow/pkg/engine"
)

func TestMetricsObserveRun(t *testing.T) {
	m := NewMetrics()

	m.StepFinished(engine.StepResult{Step: "app-config", Outcome: engine.OutcomeApplied, Duration: 2 * time.Second})
	m.StepFinished(engine.StepResult{Step: "app-config", Outcome: engine.OutcomeSkipped, Duration: time.Second})
	m.StepFinished(engine.StepResult{Step: "certificate", Outcome: engine.OutcomeFailed, Duration: time.Second})
	m.RunFinished(&engine.RunReport{State: engine.RunStateCompleted, Duration: 10 * time.Second})

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, want := range []string{
		"furrow_steps_total",
		"furrow_runs_total",
		"furrow_step_duration_seconds",
		"furrow_run_duration_seconds",
	} {
		if !found[want] {
			t.Errorf("missing metric family %s in %v", want, found)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.StepFinished(engine.StepResult{Step: "app-user", Outcome: engine.OutcomeApplied, Duration: time.Second})
	m.RunFinished(&engine.RunReport{State: engine.RunStateCompleted, Duration: time.Second})

	path := filepath.Join(t.TempDir(), "furrow.prom")
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, `furrow_steps_total{outcome="applied",step="app-user"} 1`) {
		t.Errorf("snapshot missing step counter:\n%s", text)
	}
	if !strings.Contains(text, `furrow_runs_total{state="completed"} 1`) {
		t.Errorf("snapshot missing run counter:\n%s", text)
	}
}

type countingObserver struct{ steps, runs int }

func (c *countingObserver) StepFinished(engine.StepResult) { c.steps++ }
func (c *countingObserver) RunFinished(*engine.RunReport)  { c.runs++ }

func TestCombineObservers(t *testing.T) {
	if CombineObservers(nil, nil) != nil {
		t.Error("combining only nils should yield nil")
	}

	a, b := &countingObserver{}, &countingObserver{}
	combined := CombineObservers(a, nil, b)
	combined.StepFinished(engine.StepResult{})
	combined.RunFinished(&engine.RunReport{})

	if a.steps != 1 || b.steps != 1 || a.runs != 1 || b.runs != 1 {
		t.Errorf("fan-out failed: a=%+v b=%+v", a, b)
	}
}
