// Package steps provides the concrete provisioning step implementations and
// the catalog that assembles them into a plan from a profile.
//
// Every step follows the same shape: a side-effect-free Check probing the
// host through a pkg/host contract, and an Apply that overwrites toward the
// target state. Steps never talk to each other; ordering is expressed only
// through prerequisite names.
package steps

import "github.com/furrowlabs/furrow/pkg/engine"

// base carries the identity fields shared by every step implementation.
type base struct {
	name     string
	requires []string
	policy   engine.FailurePolicy
}

// Name implements engine.Step.
func (b base) Name() string { return b.name }

// Requires implements engine.Step.
func (b base) Requires() []string { return b.requires }

// Policy implements engine.Step.
func (b base) Policy() engine.FailurePolicy { return b.policy }

func newBase(name string, policy engine.FailurePolicy, requires ...string) base {
	return base{name: name, requires: requires, policy: policy}
}
