package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/runner"
)

// Command ensures a condition expressed as a probe command holds, running an
// apply command when it does not. The probe exits zero when the target state
// holds. Used for states with no richer contract, like database roles.
type Command struct {
	base
	run   runner.Runner
	probe runner.Command
	apply runner.Command
}

// NewCommand creates a probe/apply command step.
func NewCommand(name string, policy engine.FailurePolicy, run runner.Runner, probe, apply runner.Command, requires ...string) *Command {
	return &Command{
		base:  newBase(name, policy, requires...),
		run:   run,
		probe: probe,
		apply: apply,
	}
}

// Check implements engine.Step. A probe that cannot run at all is an
// ambiguous state, not a clean miss.
func (s *Command) Check(ctx context.Context) (engine.CheckState, error) {
	res, err := s.run.Run(ctx, s.probe)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("probe for %s: %w", s.name, err)
	}
	if res.Ok() {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *Command) Apply(ctx context.Context) error {
	res, err := s.run.Run(ctx, s.apply)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s failed (exit %d): %s", s.apply.Name, res.ExitCode, res.StderrTail(512))
	}
	return nil
}
