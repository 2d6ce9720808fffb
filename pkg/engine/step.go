package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// CheckState is the verdict of a Step's Check operation.
type CheckState string

const (
	// StateSatisfied indicates the target state already holds; Apply is not
	// needed.
	StateSatisfied CheckState = "satisfied"

	// StateNotSatisfied indicates the target state does not hold; Apply must
	// run.
	StateNotSatisfied CheckState = "not_satisfied"

	// StateUnknown indicates the check could not determine the state, for
	// example when the probing command itself fails ambiguously. The engine
	// treats Unknown as NotSatisfied: Apply is idempotent, so re-applying is
	// the safe direction.
	StateUnknown CheckState = "unknown"
)

// Validate checks if the check state is valid.
func (s CheckState) Validate() error {
	switch s {
	case StateSatisfied, StateNotSatisfied, StateUnknown:
		return nil
	default:
		return fmt.Errorf("invalid check state: %s", s)
	}
}

// FailurePolicy decides whether a failed Apply halts the run.
type FailurePolicy string

const (
	// PolicyFatal aborts the run when the step fails. Already-applied state
	// is left as-is; provisioning is not transactional.
	PolicyFatal FailurePolicy = "fatal"

	// PolicyContinue records the failure and proceeds with the next step.
	PolicyContinue FailurePolicy = "continue"
)

// Validate checks if the failure policy is valid.
func (p FailurePolicy) Validate() error {
	switch p {
	case PolicyFatal, PolicyContinue:
		return nil
	default:
		return fmt.Errorf("invalid failure policy: %s", p)
	}
}

// Step is a single idempotent unit of provisioning work.
//
// Steps are stateless value objects: all runtime state (results, ordering,
// retry bookkeeping) is owned by the Engine. Check must be side-effect-free;
// Apply must tolerate partially established target state and converge on the
// desired state deterministically (overwrite, never merge).
type Step interface {
	// Name is the unique identifier of the step within a plan.
	Name() string

	// Requires lists the names of steps that must run earlier in the plan.
	Requires() []string

	// Policy returns the step's failure policy.
	Policy() FailurePolicy

	// Check reports whether the target state already holds.
	Check(ctx context.Context) (CheckState, error)

	// Apply mutates external system state toward the target state.
	Apply(ctx context.Context) error
}

// MarshalJSON implements custom JSON marshaling for type-safe enum
// serialization.
func (s CheckState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *CheckState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = CheckState(str)
	return s.Validate()
}
