package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a single engine run.
type Options struct {
	// Instance labels the run with the configured instance identifier.
	Instance string

	// MaxRetries is the number of automatic Apply retries after a failure,
	// before the step's failure policy is evaluated. Default zero.
	MaxRetries int

	// RetryBackoff is the fixed delay between Apply attempts. Fixed rather
	// than exponential: steps run at human timescale during provisioning.
	RetryBackoff time.Duration

	// StepTimeout bounds the combined Check+Apply duration of each step.
	// Zero means no timeout.
	StepTimeout time.Duration

	// DryRun skips Apply entirely: NotSatisfied steps are reported as
	// applied without mutating anything.
	DryRun bool
}

// Recorder persists the audit trail of a run. Implementations must not
// influence execution: recording failures are logged and swallowed.
type Recorder interface {
	// RunStarted is called once before the first step executes.
	RunStarted(ctx context.Context, report *RunReport) error

	// StepCompleted is called after each step result is appended.
	StepCompleted(ctx context.Context, runID string, result StepResult) error

	// RunFinished is called once after the run reaches a terminal state.
	RunFinished(ctx context.Context, report *RunReport) error
}

// Observer receives execution callbacks for metrics and tracing.
type Observer interface {
	// StepFinished is invoked with every recorded step result.
	StepFinished(result StepResult)

	// RunFinished is invoked once with the final report.
	RunFinished(report *RunReport)
}

// Engine executes a Plan sequentially: for each step, Check gates Apply, the
// result is recorded, and the failure policy decides whether to halt.
//
// Engines are single-use: one instance drives exactly one run.
type Engine struct {
	opts     Options
	log      zerolog.Logger
	state    RunState
	recorder Recorder
	observer Observer
}

// New creates an engine for a single run.
func New(opts Options, log zerolog.Logger) *Engine {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	return &Engine{
		opts:  opts,
		log:   log,
		state: RunStatePending,
	}
}

// WithRecorder attaches an audit trail recorder.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// WithObserver attaches an execution observer.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// State returns the engine's current run state.
func (e *Engine) State() RunState {
	return e.state
}

// Run executes the plan to a terminal state. The returned report is always
// non-nil once execution has started; the error is non-nil only for misuse
// (nil plan, reused engine), never for step failures; those are carried in
// the report.
func (e *Engine) Run(ctx context.Context, plan *Plan) (*RunReport, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}
	if e.state != RunStatePending {
		return nil, NewPermanentError(
			fmt.Sprintf("engine already ran (state=%s); engines are single-use", e.state), nil).
			WithCode(ErrCodeInternal)
	}

	e.state = RunStateRunning
	report := &RunReport{
		ID:        uuid.New().String(),
		Instance:  e.opts.Instance,
		State:     RunStateRunning,
		StartedAt: time.Now(),
		Results:   make([]StepResult, 0, plan.Len()),
		Summary:   RunSummary{Total: plan.Len()},
	}

	e.log.Info().
		Str("run_id", report.ID).
		Int("steps", plan.Len()).
		Bool("dry_run", e.opts.DryRun).
		Msg("run started")

	if e.recorder != nil {
		if err := e.recorder.RunStarted(ctx, report); err != nil {
			e.log.Warn().Err(err).Msg("audit recorder rejected run start")
		}
	}

	aborted := false
	for _, step := range plan.Steps() {
		// Cancellation is observed between steps only: a step that has
		// begun always finishes and has its result recorded.
		select {
		case <-ctx.Done():
			e.log.Warn().Str("run_id", report.ID).Msg("cancellation observed, aborting before next step")
			aborted = true
		default:
		}
		if aborted {
			break
		}

		result := e.runStep(ctx, step)
		e.record(ctx, report, result)

		if result.Outcome == OutcomeFailed && step.Policy() == PolicyFatal {
			e.log.Error().
				Str("run_id", report.ID).
				Str("step", step.Name()).
				Msg("fatal step failed, aborting run")
			aborted = true
			break
		}
	}

	if aborted {
		report.State = RunStateAborted
	} else {
		report.State = RunStateCompleted
	}
	e.state = report.State
	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)

	e.log.Info().
		Str("run_id", report.ID).
		Str("state", string(report.State)).
		Int("applied", report.Summary.Applied).
		Int("skipped", report.Summary.Skipped).
		Int("failed", report.Summary.Failed).
		Dur("duration", report.Duration).
		Msg("run finished")

	if e.recorder != nil {
		if err := e.recorder.RunFinished(ctx, report); err != nil {
			e.log.Warn().Err(err).Msg("audit recorder rejected run finish")
		}
	}
	if e.observer != nil {
		e.observer.RunFinished(report)
	}

	return report, nil
}

// runStep drives one Check/Apply cycle including retries. Step errors are
// folded into the result; nothing escapes to the caller.
func (e *Engine) runStep(ctx context.Context, step Step) StepResult {
	result := StepResult{
		Step:      step.Name(),
		StartedAt: time.Now(),
	}

	// The run context gates the between-steps loop only. The step context
	// is detached from parent cancellation so an interrupt never kills an
	// in-flight Apply and leaves a package half-installed; only the
	// per-step timeout can expire it.
	stepCtx := context.WithoutCancel(ctx)
	if e.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, e.opts.StepTimeout)
		defer cancel()
	}

	log := e.log.With().Str("step", step.Name()).Logger()

	// Check runs immediately before Apply and is never cached: external
	// state may have changed out-of-band since any earlier survey.
	state, err := step.Check(stepCtx)
	if err != nil {
		log.Warn().Err(err).Msg("check could not determine state, treating as not satisfied")
		state = StateUnknown
	}
	if state == StateSatisfied {
		log.Info().Msg("already satisfied, skipping")
		result.Outcome = OutcomeSkipped
		result.Detail = "target state already holds"
		return e.finishStep(result)
	}

	if e.opts.DryRun {
		log.Info().Msg("dry run, would apply")
		result.Outcome = OutcomeApplied
		result.Detail = "dry run"
		return e.finishStep(result)
	}

	attempts := e.opts.MaxRetries + 1
	var applyErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		log.Info().Int("attempt", attempt).Msg("applying")

		applyErr = step.Apply(stepCtx)
		if applyErr == nil {
			result.Outcome = OutcomeApplied
			return e.finishStep(result)
		}

		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			applyErr = NewPermanentError("step timed out", applyErr).
				WithCode(ErrCodeTimeout).WithStep(step.Name())
			break
		}
		if attempt < attempts {
			log.Warn().Err(applyErr).
				Int("attempt", attempt).
				Dur("backoff", e.opts.RetryBackoff).
				Msg("apply failed, retrying after fixed backoff")
			select {
			case <-time.After(e.opts.RetryBackoff):
			case <-stepCtx.Done():
				if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
					applyErr = NewPermanentError("step timed out", applyErr).
						WithCode(ErrCodeTimeout).WithStep(step.Name())
				}
			}
			if IsTimeout(applyErr) {
				break
			}
		}
	}

	stepErr := Classify(applyErr)
	if stepErr.Step == "" {
		stepErr.Step = step.Name()
	}
	log.Error().Err(stepErr).Int("attempts", result.Attempts).Msg("apply failed")
	result.Outcome = OutcomeFailed
	result.Error = stepErr
	result.Detail = stepErr.Error()
	return e.finishStep(result)
}

func (e *Engine) finishStep(result StepResult) StepResult {
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	return result
}

func (e *Engine) record(ctx context.Context, report *RunReport, result StepResult) {
	report.Results = append(report.Results, result)
	switch result.Outcome {
	case OutcomeApplied:
		report.Summary.Applied++
	case OutcomeSkipped:
		report.Summary.Skipped++
	case OutcomeFailed:
		report.Summary.Failed++
	}

	if e.recorder != nil {
		if err := e.recorder.StepCompleted(ctx, report.ID, result); err != nil {
			e.log.Warn().Err(err).Str("step", result.Step).Msg("audit recorder rejected step result")
		}
	}
	if e.observer != nil {
		e.observer.StepFinished(result)
	}
}

// Survey re-runs every step's Check without applying anything. Used by the
// status command to report current convergence.
func Survey(ctx context.Context, plan *Plan) []CheckReport {
	reports := make([]CheckReport, 0, plan.Len())
	for _, step := range plan.Steps() {
		report := CheckReport{Step: step.Name()}
		state, err := step.Check(ctx)
		if err != nil {
			report.State = StateUnknown
			report.Detail = err.Error()
		} else {
			report.State = state
		}
		reports = append(reports, report)
	}
	return reports
}
