package host

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// PasswdUserManager implements UserManager using getent and useradd.
type PasswdUserManager struct {
	run runner.Runner
}

// NewPasswdUserManager creates a useradd-backed user manager.
func NewPasswdUserManager(run runner.Runner) *PasswdUserManager {
	return &PasswdUserManager{run: run}
}

// Exists implements UserManager.
func (m *PasswdUserManager) Exists(ctx context.Context, name string) (bool, error) {
	res, err := m.run.Run(ctx, runner.Command{
		Name: "getent",
		Args: []string{"passwd", name},
	})
	if err != nil {
		return false, fmt.Errorf("querying user %s: %w", name, err)
	}
	// getent exits 2 when the key is absent; any zero exit means the
	// account exists.
	return res.ExitCode == 0, nil
}

// Create implements UserManager.
func (m *PasswdUserManager) Create(ctx context.Context, user SystemUser) error {
	if user.Name == "" {
		return fmt.Errorf("user name is required")
	}
	shell := user.Shell
	if shell == "" && user.System {
		shell = "/usr/sbin/nologin"
	}

	args := make([]string, 0, 8)
	if user.System {
		args = append(args, "--system")
	}
	if user.Home != "" {
		args = append(args, "--create-home", "--home-dir", user.Home)
	}
	if shell != "" {
		args = append(args, "--shell", shell)
	}
	args = append(args, user.Name)

	res, err := m.run.Run(ctx, runner.Command{Name: "useradd", Args: args})
	if err != nil {
		return err
	}
	// Exit 9 means the account already exists; Apply tolerates a partially
	// established target.
	if res.ExitCode != 0 && res.ExitCode != 9 {
		return fmt.Errorf("useradd %s failed (exit %d): %s", user.Name, res.ExitCode, res.StderrTail(512))
	}
	return nil
}
