package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// CronSchedule ensures a marker-tagged crontab entry exists for a user.
type CronSchedule struct {
	base
	user     string
	marker   string
	schedule string
	command  string
	sched    host.CronScheduler
}

// NewCronSchedule creates a scheduled task step. marker identifies the entry
// across runs so re-applying replaces rather than duplicates.
func NewCronSchedule(name string, policy engine.FailurePolicy, sched host.CronScheduler, user, marker, schedule, command string, requires ...string) *CronSchedule {
	return &CronSchedule{
		base:     newBase(name, policy, requires...),
		user:     user,
		marker:   marker,
		schedule: schedule,
		command:  command,
		sched:    sched,
	}
}

// Check implements engine.Step.
func (s *CronSchedule) Check(ctx context.Context) (engine.CheckState, error) {
	has, err := s.sched.HasEntry(ctx, s.user, s.marker)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying crontab for %s: %w", s.user, err)
	}
	if has {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *CronSchedule) Apply(ctx context.Context) error {
	return s.sched.Install(ctx, s.user, s.marker, s.schedule, s.command)
}
