package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// UFWFirewall implements Firewall using the ufw CLI.
type UFWFirewall struct {
	run runner.Runner
}

// NewUFWFirewall creates a ufw-backed firewall.
func NewUFWFirewall(run runner.Runner) *UFWFirewall {
	return &UFWFirewall{run: run}
}

// IsEnabled implements Firewall.
func (f *UFWFirewall) IsEnabled(ctx context.Context) (bool, error) {
	res, err := f.run.Run(ctx, runner.Command{Name: "ufw", Args: []string{"status"}})
	if err != nil {
		return false, fmt.Errorf("querying firewall status: %w", err)
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("ufw status failed (exit %d): %s", res.ExitCode, res.StderrTail(256))
	}
	return strings.Contains(res.Stdout, "Status: active"), nil
}

// HasRule implements Firewall.
func (f *UFWFirewall) HasRule(ctx context.Context, rule Rule) (bool, error) {
	res, err := f.run.Run(ctx, runner.Command{Name: "ufw", Args: []string{"status"}})
	if err != nil {
		return false, fmt.Errorf("querying firewall rules: %w", err)
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("ufw status failed (exit %d): %s", res.ExitCode, res.StderrTail(256))
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == rule.String() && strings.HasPrefix(fields[1], "ALLOW") {
			return true, nil
		}
	}
	return false, nil
}

// Allow implements Firewall. ufw reports "Skipping adding existing rule" on
// duplicates and exits zero, so re-applying is safe.
func (f *UFWFirewall) Allow(ctx context.Context, rule Rule) error {
	res, err := f.run.Run(ctx, runner.Command{Name: "ufw", Args: []string{"allow", rule.String()}})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("ufw allow %s failed (exit %d): %s", rule, res.ExitCode, res.StderrTail(256))
	}
	return nil
}

// Enable implements Firewall. --force skips the interactive "may disrupt ssh
// connections" prompt.
func (f *UFWFirewall) Enable(ctx context.Context) error {
	res, err := f.run.Run(ctx, runner.Command{Name: "ufw", Args: []string{"--force", "enable"}})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("ufw enable failed (exit %d): %s", res.ExitCode, res.StderrTail(256))
	}
	return nil
}
