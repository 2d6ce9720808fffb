package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// PackageInstall ensures an OS package is installed, optionally at a pinned
// version. With no pinned version any installed version satisfies the step.
// A version mismatch triggers an explicit upgrade; the underlying manager
// never downgrades.
type PackageInstall struct {
	base
	pkg     string
	version string
	mgr     host.PackageManager
}

// NewPackageInstall creates a package installation step.
func NewPackageInstall(name string, policy engine.FailurePolicy, mgr host.PackageManager, pkg, version string, requires ...string) *PackageInstall {
	return &PackageInstall{
		base:    newBase(name, policy, requires...),
		pkg:     pkg,
		version: version,
		mgr:     mgr,
	}
}

// Check implements engine.Step.
func (s *PackageInstall) Check(ctx context.Context) (engine.CheckState, error) {
	installed, present, err := s.mgr.InstalledVersion(ctx, s.pkg)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying package %s: %w", s.pkg, err)
	}
	if !present {
		return engine.StateNotSatisfied, nil
	}
	if s.version != "" && installed != s.version {
		return engine.StateNotSatisfied, nil
	}
	return engine.StateSatisfied, nil
}

// Apply implements engine.Step.
func (s *PackageInstall) Apply(ctx context.Context) error {
	_, present, err := s.mgr.InstalledVersion(ctx, s.pkg)
	if err != nil {
		return fmt.Errorf("querying package %s: %w", s.pkg, err)
	}
	if present {
		return s.mgr.Upgrade(ctx, s.pkg, s.version)
	}
	return s.mgr.Install(ctx, s.pkg, s.version)
}
