package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// UserCreate ensures a local system account exists. Existing accounts are
// never modified: an account with a different home or shell still satisfies
// the step, since rewriting live accounts is more disruptive than the drift.
type UserCreate struct {
	base
	user host.SystemUser
	mgr  host.UserManager
}

// NewUserCreate creates a system user step.
func NewUserCreate(name string, policy engine.FailurePolicy, mgr host.UserManager, user host.SystemUser, requires ...string) *UserCreate {
	return &UserCreate{
		base: newBase(name, policy, requires...),
		user: user,
		mgr:  mgr,
	}
}

// Check implements engine.Step.
func (s *UserCreate) Check(ctx context.Context) (engine.CheckState, error) {
	exists, err := s.mgr.Exists(ctx, s.user.Name)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying user %s: %w", s.user.Name, err)
	}
	if exists {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *UserCreate) Apply(ctx context.Context) error {
	return s.mgr.Create(ctx, s.user)
}
