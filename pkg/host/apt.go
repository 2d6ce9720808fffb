package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// AptManager implements PackageManager for Debian-family hosts using apt-get
// and dpkg-query.
type AptManager struct {
	run runner.Runner
}

// NewAptManager creates an apt-backed package manager.
func NewAptManager(run runner.Runner) *AptManager {
	return &AptManager{run: run}
}

// InstalledVersion implements PackageManager.
func (m *AptManager) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "dpkg-query",
		Args: []string{"-W", "-f=${db:Status-Status} ${Version}", name},
	})
	if err != nil {
		return "", false, fmt.Errorf("querying package %s: %w", name, err)
	}
	// dpkg-query exits non-zero for packages it has never seen. That is an
	// ordinary "not installed", not a probe failure.
	if res.ExitCode != 0 {
		return "", false, nil
	}
	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) < 2 || fields[0] != "installed" {
		return "", false, nil
	}
	return fields[1], true, nil
}

// Install implements PackageManager.
func (m *AptManager) Install(ctx context.Context, name, version string) error {
	spec := name
	if version != "" {
		spec = name + "=" + version
	}
	res, err := m.run.Run(ctx, runner.Command{
		Name: "apt-get",
		Args: []string{"install", "-y", spec},
		Env:  map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("apt-get install %s failed (exit %d): %s", spec, res.ExitCode, res.StderrTail(512))
	}
	return nil
}

// Upgrade implements PackageManager.
func (m *AptManager) Upgrade(ctx context.Context, name, version string) error {
	spec := name
	if version != "" {
		spec = name + "=" + version
	}
	res, err := m.run.Run(ctx, runner.Command{
		Name: "apt-get",
		Args: []string{"install", "-y", "--only-upgrade", spec},
		Env:  map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("apt-get upgrade %s failed (exit %d): %s", spec, res.ExitCode, res.StderrTail(512))
	}
	return nil
}
