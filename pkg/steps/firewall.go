package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// FirewallAllow ensures a set of allow rules exists. Rules are added before
// the firewall is enabled so enabling never cuts off a port the profile
// exposes.
type FirewallAllow struct {
	base
	rules []host.Rule
	fw    host.Firewall
}

// NewFirewallAllow creates a firewall rule step.
func NewFirewallAllow(name string, policy engine.FailurePolicy, fw host.Firewall, rules []host.Rule, requires ...string) *FirewallAllow {
	return &FirewallAllow{
		base:  newBase(name, policy, requires...),
		rules: rules,
		fw:    fw,
	}
}

// Check implements engine.Step. Every rule must be present.
func (s *FirewallAllow) Check(ctx context.Context) (engine.CheckState, error) {
	for _, rule := range s.rules {
		has, err := s.fw.HasRule(ctx, rule)
		if err != nil {
			return engine.StateUnknown, fmt.Errorf("querying rule %s: %w", rule, err)
		}
		if !has {
			return engine.StateNotSatisfied, nil
		}
	}
	return engine.StateSatisfied, nil
}

// Apply implements engine.Step.
func (s *FirewallAllow) Apply(ctx context.Context) error {
	for _, rule := range s.rules {
		if err := s.fw.Allow(ctx, rule); err != nil {
			return fmt.Errorf("allowing %s: %w", rule, err)
		}
	}
	return nil
}

// FirewallEnable ensures the firewall is active.
type FirewallEnable struct {
	base
	fw host.Firewall
}

// NewFirewallEnable creates a firewall activation step.
func NewFirewallEnable(name string, policy engine.FailurePolicy, fw host.Firewall, requires ...string) *FirewallEnable {
	return &FirewallEnable{
		base: newBase(name, policy, requires...),
		fw:   fw,
	}
}

// Check implements engine.Step.
func (s *FirewallEnable) Check(ctx context.Context) (engine.CheckState, error) {
	enabled, err := s.fw.IsEnabled(ctx)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying firewall: %w", err)
	}
	if enabled {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *FirewallEnable) Apply(ctx context.Context) error {
	return s.fw.Enable(ctx)
}
