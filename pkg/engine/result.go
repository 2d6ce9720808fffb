package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome represents the result of executing a single step.
type Outcome string

const (
	// OutcomeApplied indicates Check reported NotSatisfied and Apply
	// succeeded.
	OutcomeApplied Outcome = "applied"

	// OutcomeSkipped indicates Check reported Satisfied; Apply did not run.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed indicates Apply failed after all configured retries.
	OutcomeFailed Outcome = "failed"
)

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeApplied, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum
// serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Outcome(str)
	return o.Validate()
}

// StepResult records the outcome of one step within a run.
type StepResult struct {
	// Step is the name of the step this result belongs to.
	Step string `json:"step"`

	// Outcome is what happened: applied, skipped, or failed.
	Outcome Outcome `json:"outcome"`

	// Attempts is the number of Apply invocations, including retries.
	// Zero for skipped steps.
	Attempts int `json:"attempts"`

	// Detail carries human-readable context: the captured stderr tail for
	// failures, or a short note for skips.
	Detail string `json:"detail,omitempty"`

	// Error is the classified error for failed steps.
	Error *StepError `json:"error,omitempty"`

	// StartedAt is when the step started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the step completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total step execution time.
	Duration time.Duration `json:"duration"`
}

// RunState represents the lifecycle state of an Engine run.
type RunState string

const (
	// RunStatePending indicates the engine has not started yet.
	RunStatePending RunState = "pending"

	// RunStateRunning indicates the engine is executing steps.
	RunStateRunning RunState = "running"

	// RunStateCompleted indicates every step in the plan was processed.
	// Completed does not imply success: Continue-policy failures are
	// reflected in the summary.
	RunStateCompleted RunState = "completed"

	// RunStateAborted indicates a Fatal failure or cancellation stopped the
	// run before all steps were processed.
	RunStateAborted RunState = "aborted"
)

// IsTerminal returns true if the run state represents a final state.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	switch s {
	case RunStatePending, RunStateRunning, RunStateCompleted, RunStateAborted:
		return nil
	default:
		return fmt.Errorf("invalid run state: %s", s)
	}
}

// RunSummary provides aggregate statistics about a run.
type RunSummary struct {
	// Total is the number of steps in the plan.
	Total int `json:"total"`

	// Applied is the number of steps whose Apply ran and succeeded.
	Applied int `json:"applied"`

	// Skipped is the number of steps whose Check reported Satisfied.
	Skipped int `json:"skipped"`

	// Failed is the number of steps whose Apply failed.
	Failed int `json:"failed"`
}

// RunReport is the audit trail of one engine run: an append-only ordered
// sequence of step results plus the terminal state.
type RunReport struct {
	// ID uniquely identifies this run.
	ID string `json:"id"`

	// Instance is the instance identifier from the configuration profile.
	Instance string `json:"instance"`

	// State is the terminal state of the run.
	State RunState `json:"state"`

	// Results lists step results in execution order.
	Results []StepResult `json:"results"`

	// Summary provides aggregate counts.
	Summary RunSummary `json:"summary"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the run completed with no failed steps.
func (r *RunReport) Succeeded() bool {
	return r.State == RunStateCompleted && r.Summary.Failed == 0
}

// CheckReport records the verdict of a single step's Check during a
// status survey.
type CheckReport struct {
	// Step is the step name.
	Step string `json:"step"`

	// State is the check verdict.
	State CheckState `json:"state"`

	// Detail carries the check error message when the state could not be
	// determined.
	Detail string `json:"detail,omitempty"`
}
