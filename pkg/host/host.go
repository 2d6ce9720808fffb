// Package host defines the contracts for the external tools the provisioning
// steps drive (package manager, service manager, certificate issuance,
// firewall, scheduled tasks, system users) and the concrete adapters that
// implement them over a command runner.
//
// Steps depend only on these interfaces. The adapters shell out to the usual
// Debian-family tooling; tests substitute in-memory fakes.
package host

import (
	"context"
	"fmt"
)

// PackageManager installs and queries OS packages.
type PackageManager interface {
	// InstalledVersion reports the installed version of a package.
	// installed is false when the package is absent; that is not an error.
	InstalledVersion(ctx context.Context, name string) (version string, installed bool, err error)

	// Install installs a package. version may be empty for the candidate
	// version.
	Install(ctx context.Context, name, version string) error

	// Upgrade moves an installed package to the requested version. It is an
	// explicit operation: the engine never upgrades implicitly, and never
	// downgrades at all.
	Upgrade(ctx context.Context, name, version string) error
}

// SystemUser describes a local account to create.
type SystemUser struct {
	// Name is the account name.
	Name string

	// Home is the home directory path. Created when non-empty.
	Home string

	// Shell is the login shell. Defaults to nologin for system accounts.
	Shell string

	// System marks the account as a system account (no aging, low UID).
	System bool
}

// UserManager creates and queries local system users.
type UserManager interface {
	// Exists reports whether the account exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Create creates the account.
	Create(ctx context.Context, user SystemUser) error
}

// ServiceManager drives the init system.
type ServiceManager interface {
	// IsEnabled reports whether the unit starts at boot.
	IsEnabled(ctx context.Context, unit string) (bool, error)

	// IsActive reports whether the unit is currently running.
	IsActive(ctx context.Context, unit string) (bool, error)

	// Enable enables and starts the unit. Idempotent against units that are
	// already enabled or already running.
	Enable(ctx context.Context, unit string) error

	// Restart restarts the unit.
	Restart(ctx context.Context, unit string) error

	// Reload reloads the unit's configuration without a restart.
	Reload(ctx context.Context, unit string) error

	// DaemonReload makes the init system re-read unit files after one was
	// written or changed.
	DaemonReload(ctx context.Context) error
}

// CertificateIssuer obtains TLS certificates for a domain.
type CertificateIssuer interface {
	// HasCertificate reports whether a live certificate exists for the
	// domain.
	HasCertificate(ctx context.Context, domain string) (bool, error)

	// Obtain requests and installs a certificate for the domain, using the
	// contact email for the CA account.
	Obtain(ctx context.Context, domain, email string) error
}

// Rule is a firewall allow rule for a TCP/UDP port.
type Rule struct {
	// Port is the port number.
	Port int

	// Proto is "tcp" or "udp".
	Proto string
}

// String renders the rule in port/proto form, e.g. "8069/tcp".
func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Port, r.Proto)
}

// Firewall manages host firewall state.
type Firewall interface {
	// IsEnabled reports whether the firewall is active.
	IsEnabled(ctx context.Context) (bool, error)

	// HasRule reports whether an allow rule for the given port exists.
	HasRule(ctx context.Context, rule Rule) (bool, error)

	// Allow adds an allow rule. Idempotent: adding an existing rule is a
	// no-op.
	Allow(ctx context.Context, rule Rule) error

	// Enable activates the firewall.
	Enable(ctx context.Context) error
}

// CronScheduler installs marker-tagged scheduled task entries.
type CronScheduler interface {
	// HasEntry reports whether an entry tagged with marker exists in the
	// user's table.
	HasEntry(ctx context.Context, user, marker string) (bool, error)

	// Install writes the entry, replacing any previous entry with the same
	// marker. The whole table is rewritten deterministically.
	Install(ctx context.Context, user, marker, schedule, command string) error
}
