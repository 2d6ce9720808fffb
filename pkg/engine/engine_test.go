package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testEngine(opts Options) *Engine {
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return New(opts, zerolog.Nop())
}

func mustPlan(t *testing.T, steps ...Step) *Plan {
	t.Helper()
	plan, err := NewPlan(steps)
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestRunAppliesNotSatisfiedSteps(t *testing.T) {
	a := step("a")
	b := step("b", "a")
	report, err := testEngine(Options{}).Run(context.Background(), mustPlan(t, a, b))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", report.State)
	}
	if !report.Succeeded() {
		t.Error("Succeeded() = false")
	}
	if report.Summary.Applied != 2 || report.Summary.Skipped != 0 || report.Summary.Failed != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if a.applyCalls != 1 || b.applyCalls != 1 {
		t.Errorf("apply calls = %d, %d", a.applyCalls, b.applyCalls)
	}
	if len(report.Results) != 2 || report.Results[0].Step != "a" || report.Results[1].Step != "b" {
		t.Errorf("results = %+v", report.Results)
	}
}

func TestRunSkipsSatisfiedSteps(t *testing.T) {
	// Second-run shape: everything already converged.
	steps := []Step{step("a"), step("b", "a"), step("c", "b")}
	for _, s := range steps {
		s.(*fakeStep).checkState = StateSatisfied
	}

	report, err := testEngine(Options{}).Run(context.Background(), mustPlan(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Skipped != 3 || report.Summary.Applied != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}
	for _, s := range steps {
		if s.(*fakeStep).applyCalls != 0 {
			t.Errorf("step %s applied despite being satisfied", s.Name())
		}
		if s.(*fakeStep).checkCalls != 1 {
			t.Errorf("step %s checked %d times", s.Name(), s.(*fakeStep).checkCalls)
		}
	}
	if !report.Succeeded() {
		t.Error("an all-skipped run succeeds")
	}
}

func TestRunTreatsUnknownAsNotSatisfied(t *testing.T) {
	s := step("probe")
	s.checkErr = errors.New("probe tool unavailable")

	report, err := testEngine(Options{}).Run(context.Background(), mustPlan(t, s))
	if err != nil {
		t.Fatal(err)
	}
	if s.applyCalls != 1 {
		t.Errorf("apply calls = %d, want 1 (unknown re-applies)", s.applyCalls)
	}
	if report.Summary.Applied != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestRunRetriesThenAborts(t *testing.T) {
	failing := step("flaky")
	failing.applyErr = func(int) error { return errors.New("mirror timeout") }
	later := step("later", "flaky")

	report, err := testEngine(Options{MaxRetries: 1}).Run(context.Background(), mustPlan(t, failing, later))
	if err != nil {
		t.Fatal(err)
	}

	// One initial attempt plus exactly one retry.
	if failing.applyCalls != 2 {
		t.Errorf("apply calls = %d, want 2", failing.applyCalls)
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
	if later.checkCalls != 0 || later.applyCalls != 0 {
		t.Error("steps after a fatal failure must not run")
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %+v", report.Results)
	}
	res := report.Results[0]
	if res.Outcome != OutcomeFailed || res.Attempts != 2 || res.Error == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRunRetrySucceedsMidway(t *testing.T) {
	flaky := step("flaky")
	flaky.applyErr = func(attempt int) error {
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}

	report, err := testEngine(Options{MaxRetries: 2}).Run(context.Background(), mustPlan(t, flaky))
	if err != nil {
		t.Fatal(err)
	}
	if flaky.applyCalls != 3 {
		t.Errorf("apply calls = %d, want 3", flaky.applyCalls)
	}
	if report.Results[0].Outcome != OutcomeApplied || report.Results[0].Attempts != 3 {
		t.Errorf("result = %+v", report.Results[0])
	}
	if !report.Succeeded() {
		t.Error("run should succeed after a successful retry")
	}
}

func TestRunContinuePolicyProceedsPastFailure(t *testing.T) {
	failing := step("optional")
	failing.policy = PolicyContinue
	failing.applyErr = func(int) error { return errors.New("no such package") }
	after := step("after")

	report, err := testEngine(Options{}).Run(context.Background(), mustPlan(t, failing, after))
	if err != nil {
		t.Fatal(err)
	}
	if report.State != RunStateCompleted {
		t.Errorf("state = %s, want completed", report.State)
	}
	if report.Succeeded() {
		t.Error("a completed run with failures must not count as succeeded")
	}
	if after.applyCalls != 1 {
		t.Error("continue policy must let later steps run")
	}
	if report.Summary.Failed != 1 || report.Summary.Applied != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestRunObservesCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := step("first")
	first.applyNotify = cancel // cancellation arrives while the step runs
	second := step("second", "first")

	report, err := testEngine(Options{}).Run(ctx, mustPlan(t, first, second))
	if err != nil {
		t.Fatal(err)
	}

	// The in-flight step finishes and is recorded; the next never starts.
	if len(report.Results) != 1 || report.Results[0].Step != "first" {
		t.Fatalf("results = %+v", report.Results)
	}
	if report.Results[0].Outcome != OutcomeApplied {
		t.Errorf("in-flight step outcome = %s", report.Results[0].Outcome)
	}
	if second.checkCalls != 0 {
		t.Error("next step must not start after cancellation")
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
}

func TestRunInFlightApplyOutlivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := step("first")
	first.applyNotify = cancel // interrupt arrives mid-apply
	first.applyFn = func(stepCtx context.Context) error {
		// A step driving a real process dies here if the run's
		// cancellation reaches its context.
		select {
		case <-stepCtx.Done():
			return stepCtx.Err()
		case <-time.After(20 * time.Millisecond):
			return nil
		}
	}
	second := step("second", "first")

	report, err := testEngine(Options{}).Run(ctx, mustPlan(t, first, second))
	if err != nil {
		t.Fatal(err)
	}

	res := report.Results[0]
	if res.Outcome != OutcomeApplied {
		t.Errorf("in-flight apply must run to completion, got %+v", res)
	}
	if res.Error != nil {
		t.Errorf("unexpected step error: %v", res.Error)
	}
	if second.checkCalls != 0 {
		t.Error("next step must not start after cancellation")
	}
	if report.State != RunStateAborted {
		t.Errorf("state = %s, want aborted", report.State)
	}
}

func TestRunDryRunNeverApplies(t *testing.T) {
	pending := step("pending")
	done := step("done")
	done.checkState = StateSatisfied

	report, err := testEngine(Options{DryRun: true}).Run(context.Background(), mustPlan(t, pending, done))
	if err != nil {
		t.Fatal(err)
	}
	if pending.applyCalls != 0 || done.applyCalls != 0 {
		t.Error("dry run must not apply")
	}
	if report.Summary.Applied != 1 || report.Summary.Skipped != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.Results[0].Detail != "dry run" {
		t.Errorf("detail = %q", report.Results[0].Detail)
	}
}

func TestRunStepTimeout(t *testing.T) {
	slow := step("slow")
	slow.applyErr = func(int) error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("interrupted")
	}

	report, err := testEngine(Options{StepTimeout: 10 * time.Millisecond, MaxRetries: 3}).
		Run(context.Background(), mustPlan(t, slow))
	if err != nil {
		t.Fatal(err)
	}

	// The timeout breaks the retry loop: no further attempts.
	if slow.applyCalls != 1 {
		t.Errorf("apply calls = %d, want 1", slow.applyCalls)
	}
	res := report.Results[0]
	if res.Outcome != OutcomeFailed || res.Error == nil || res.Error.Code != ErrCodeTimeout {
		t.Errorf("result = %+v", res)
	}
}

func TestEngineIsSingleUse(t *testing.T) {
	eng := testEngine(Options{})
	plan := mustPlan(t, step("a"))

	if _, err := eng.Run(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background(), plan); err == nil {
		t.Fatal("second Run on the same engine must fail")
	}
	if eng.State() != RunStateCompleted {
		t.Errorf("state = %s", eng.State())
	}
}

func TestRunNilPlan(t *testing.T) {
	if _, err := testEngine(Options{}).Run(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a nil plan")
	}
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	steps []StepResult
	runs  []*RunReport
}

func (o *recordingObserver) StepFinished(r StepResult) { o.steps = append(o.steps, r) }
func (o *recordingObserver) RunFinished(r *RunReport)  { o.runs = append(o.runs, r) }

func TestRunNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	eng := testEngine(Options{}).WithObserver(obs)

	report, err := eng.Run(context.Background(), mustPlan(t, step("a"), step("b")))
	if err != nil {
		t.Fatal(err)
	}
	if len(obs.steps) != 2 {
		t.Errorf("observer saw %d steps", len(obs.steps))
	}
	if len(obs.runs) != 1 || obs.runs[0] != report {
		t.Errorf("observer runs = %+v", obs.runs)
	}
}

// failingRecorder always errors; recording must never affect execution.
type failingRecorder struct{ calls int }

func (r *failingRecorder) RunStarted(context.Context, *RunReport) error {
	r.calls++
	return errors.New("disk full")
}
func (r *failingRecorder) StepCompleted(context.Context, string, StepResult) error {
	r.calls++
	return errors.New("disk full")
}
func (r *failingRecorder) RunFinished(context.Context, *RunReport) error {
	r.calls++
	return errors.New("disk full")
}

func TestRunSurvivesRecorderFailures(t *testing.T) {
	rec := &failingRecorder{}
	report, err := testEngine(Options{}).WithRecorder(rec).
		Run(context.Background(), mustPlan(t, step("a")))
	if err != nil {
		t.Fatal(err)
	}
	if !report.Succeeded() {
		t.Error("recorder failures must not fail the run")
	}
	if rec.calls != 3 {
		t.Errorf("recorder calls = %d, want 3", rec.calls)
	}
}

func TestSurveyChecksWithoutApplying(t *testing.T) {
	ok := step("ok")
	ok.checkState = StateSatisfied
	pending := step("pending")
	broken := step("broken")
	broken.checkErr = errors.New("probe failed")

	reports := Survey(context.Background(), mustPlan(t, ok, pending, broken))
	if len(reports) != 3 {
		t.Fatalf("reports = %+v", reports)
	}
	if reports[0].State != StateSatisfied || reports[1].State != StateNotSatisfied {
		t.Errorf("states = %+v", reports)
	}
	if reports[2].State != StateUnknown || reports[2].Detail == "" {
		t.Errorf("broken check = %+v", reports[2])
	}
	for _, s := range []*fakeStep{ok, pending, broken} {
		if s.applyCalls != 0 {
			t.Errorf("survey applied step %s", s.name)
		}
	}
}
