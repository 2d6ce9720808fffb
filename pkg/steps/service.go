package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// ServiceEnable ensures a unit is enabled at boot and currently running.
// When daemonReload is set, Apply re-reads unit files first, for units whose
// definition another step wrote.
type ServiceEnable struct {
	base
	unit         string
	daemonReload bool
	mgr          host.ServiceManager
}

// NewServiceEnable creates a service enablement step.
func NewServiceEnable(name string, policy engine.FailurePolicy, mgr host.ServiceManager, unit string, daemonReload bool, requires ...string) *ServiceEnable {
	return &ServiceEnable{
		base:         newBase(name, policy, requires...),
		unit:         unit,
		daemonReload: daemonReload,
		mgr:          mgr,
	}
}

// Check implements engine.Step.
func (s *ServiceEnable) Check(ctx context.Context) (engine.CheckState, error) {
	enabled, err := s.mgr.IsEnabled(ctx, s.unit)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying %s: %w", s.unit, err)
	}
	active, err := s.mgr.IsActive(ctx, s.unit)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying %s: %w", s.unit, err)
	}
	if enabled && active {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *ServiceEnable) Apply(ctx context.Context) error {
	if s.daemonReload {
		if err := s.mgr.DaemonReload(ctx); err != nil {
			return err
		}
	}
	return s.mgr.Enable(ctx, s.unit)
}

// ServiceReload makes a running unit re-read its configuration. Reloading
// an already-correct service is harmless, so the step applies whenever the
// unit is active.
type ServiceReload struct {
	base
	unit string
	mgr  host.ServiceManager
}

// NewServiceReload creates a service reload step.
func NewServiceReload(name string, policy engine.FailurePolicy, mgr host.ServiceManager, unit string, requires ...string) *ServiceReload {
	return &ServiceReload{
		base: newBase(name, policy, requires...),
		unit: unit,
		mgr:  mgr,
	}
}

// Check implements engine.Step. A unit that is not running has nothing to
// reload, so an inactive unit satisfies the step.
func (s *ServiceReload) Check(ctx context.Context) (engine.CheckState, error) {
	active, err := s.mgr.IsActive(ctx, s.unit)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying %s: %w", s.unit, err)
	}
	if !active {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *ServiceReload) Apply(ctx context.Context) error {
	return s.mgr.Reload(ctx, s.unit)
}
