package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// SystemdManager implements ServiceManager using systemctl.
type SystemdManager struct {
	run runner.Runner
}

// NewSystemdManager creates a systemd-backed service manager.
func NewSystemdManager(run runner.Runner) *SystemdManager {
	return &SystemdManager{run: run}
}

// IsEnabled implements ServiceManager.
func (m *SystemdManager) IsEnabled(ctx context.Context, unit string) (bool, error) {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{"is-enabled", unit},
	})
	if err != nil {
		return false, fmt.Errorf("querying unit %s: %w", unit, err)
	}
	// is-enabled exits non-zero for disabled and unknown units alike; the
	// printed state disambiguates, but for Check purposes both mean "not
	// enabled".
	return strings.TrimSpace(res.Stdout) == "enabled", nil
}

// IsActive implements ServiceManager.
func (m *SystemdManager) IsActive(ctx context.Context, unit string) (bool, error) {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{"is-active", unit},
	})
	if err != nil {
		return false, fmt.Errorf("querying unit %s: %w", unit, err)
	}
	return strings.TrimSpace(res.Stdout) == "active", nil
}

// Enable implements ServiceManager. systemctl treats enabling an enabled
// unit and starting a running unit as no-ops, so Apply stays idempotent.
func (m *SystemdManager) Enable(ctx context.Context, unit string) error {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{"enable", "--now", unit},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("systemctl enable --now %s failed (exit %d): %s", unit, res.ExitCode, res.StderrTail(512))
	}
	return nil
}

// Restart implements ServiceManager.
func (m *SystemdManager) Restart(ctx context.Context, unit string) error {
	return m.simple(ctx, "restart", unit)
}

// Reload implements ServiceManager.
func (m *SystemdManager) Reload(ctx context.Context, unit string) error {
	return m.simple(ctx, "reload", unit)
}

// DaemonReload implements ServiceManager.
func (m *SystemdManager) DaemonReload(ctx context.Context) error {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{"daemon-reload"},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("systemctl daemon-reload failed (exit %d): %s", res.ExitCode, res.StderrTail(512))
	}
	return nil
}

func (m *SystemdManager) simple(ctx context.Context, verb, unit string) error {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{verb, unit},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("systemctl %s %s failed (exit %d): %s", verb, unit, res.ExitCode, res.StderrTail(512))
	}
	return nil
}
