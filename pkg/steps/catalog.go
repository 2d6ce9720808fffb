package steps

import (
	"fmt"
	"os"

	"github.com/furrowlabs/furrow/pkg/config"
	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
	"github.com/furrowlabs/furrow/pkg/runner"
)

// Step names, stable across releases: they key the audit journal and the
// metrics labels.
const (
	StepPostgresPackage = "postgres-package"
	StepPostgresService = "postgres-service"
	StepDatabaseRole    = "database-role"
	StepAppUser         = "app-user"
	StepAppPackage      = "app-package"
	StepAppConfig       = "app-config"
	StepServiceUnit     = "service-unit"
	StepAppService      = "app-service"
	StepProxyPackage    = "proxy-package"
	StepProxyService    = "proxy-service"
	StepProxyConfig     = "proxy-config"
	StepProxyReload     = "proxy-reload"
	StepCertbotPackage  = "certbot-package"
	StepCertbotPlugin   = "certbot-plugin"
	StepCertificate     = "certificate"
	StepFirewallPackage = "firewall-package"
	StepFirewallRules   = "firewall-rules"
	StepFirewallEnable  = "firewall-enable"
	StepBackupScript    = "backup-script"
	StepBackupSchedule  = "backup-schedule"
	StepSSHConfig       = "ssh-config"
	StepSSHReload       = "ssh-reload"
)

// OS packages the catalog provisions.
const (
	postgresPackage      = "postgresql"
	nginxPackage         = "nginx"
	certbotPackage       = "certbot"
	certbotNginxPackage  = "python3-certbot-nginx"
	ufwPackage           = "ufw"
	appPackageCommunity  = "erp-core"
	appPackageEnterprise = "erp-enterprise"
)

const backupRetentionDays = 14

// Hosts bundles the collaborator implementations the catalog wires into
// steps.
type Hosts struct {
	Packages host.PackageManager
	Users    host.UserManager
	Services host.ServiceManager
	Certs    host.CertificateIssuer
	Firewall host.Firewall
	Cron     host.CronScheduler
	Runner   runner.Runner
}

// DefaultHosts returns the Debian-family adapters over the given runner.
func DefaultHosts(run runner.Runner) Hosts {
	return Hosts{
		Packages: host.NewAptManager(run),
		Users:    host.NewPasswdUserManager(run),
		Services: host.NewSystemdManager(run),
		Certs:    host.NewCertbotIssuer(run),
		Firewall: host.NewUFWFirewall(run),
		Cron:     host.NewCrontabScheduler(run),
		Runner:   run,
	}
}

// BuildPlan assembles the provisioning plan for a validated profile. Steps
// activate per the profile's toggles; declaration order below is the
// tie-break order of the final plan.
func BuildPlan(p config.Profile, h Hosts) (*engine.Plan, error) {
	var list []engine.Step
	add := func(s engine.Step, err error) error {
		if err != nil {
			return err
		}
		list = append(list, s)
		return nil
	}

	// Database layer.
	list = append(list, NewPackageInstall(StepPostgresPackage, engine.PolicyFatal, h.Packages, postgresPackage, ""))
	list = append(list, NewServiceEnable(StepPostgresService, engine.PolicyFatal, h.Services, "postgresql", false, StepPostgresPackage))
	list = append(list, databaseRoleStep(p, h))

	// Application layer.
	list = append(list, NewUserCreate(StepAppUser, engine.PolicyFatal, h.Users, host.SystemUser{
		Name:   p.SystemUserName(),
		Home:   "/var/lib/" + p.Instance,
		System: true,
	}))
	list = append(list, NewPackageInstall(StepAppPackage, engine.PolicyFatal, h.Packages, appPackage(p.Edition), ""))

	if err := add(appConfigStep(p)); err != nil {
		return nil, err
	}
	if err := add(serviceUnitStep(p)); err != nil {
		return nil, err
	}
	list = append(list, NewServiceEnable(StepAppService, engine.PolicyFatal, h.Services, p.ServiceName(), true, StepServiceUnit, StepDatabaseRole))

	// Reverse proxy.
	if p.Toggles.ReverseProxy {
		list = append(list, NewPackageInstall(StepProxyPackage, engine.PolicyFatal, h.Packages, nginxPackage, ""))
		list = append(list, NewServiceEnable(StepProxyService, engine.PolicyFatal, h.Services, "nginx", false, StepProxyPackage))
		if err := add(proxyConfigStep(p)); err != nil {
			return nil, err
		}
		list = append(list, NewServiceReload(StepProxyReload, engine.PolicyContinue, h.Services, "nginx", StepProxyConfig))
	}

	// TLS.
	if p.TLS {
		list = append(list, NewPackageInstall(StepCertbotPackage, engine.PolicyFatal, h.Packages, certbotPackage, "", StepProxyService))
		list = append(list, NewPackageInstall(StepCertbotPlugin, engine.PolicyFatal, h.Packages, certbotNginxPackage, "", StepCertbotPackage))
		list = append(list, NewCertificateIssue(StepCertificate, engine.PolicyContinue, h.Certs, p.Domain, p.AdminEmail,
			StepCertbotPlugin, StepProxyReload))
	}

	// Firewall.
	if p.Toggles.Firewall {
		list = append(list, NewPackageInstall(StepFirewallPackage, engine.PolicyFatal, h.Packages, ufwPackage, ""))
		list = append(list, NewFirewallAllow(StepFirewallRules, engine.PolicyFatal, h.Firewall, firewallRules(p), StepFirewallPackage))
		list = append(list, NewFirewallEnable(StepFirewallEnable, engine.PolicyContinue, h.Firewall, StepFirewallRules))
	}

	// Backups.
	if p.Toggles.Backups {
		if err := add(backupScriptStep(p)); err != nil {
			return nil, err
		}
		list = append(list, NewCronSchedule(StepBackupSchedule, engine.PolicyContinue, h.Cron,
			"root", p.Instance+"-backup", "30 2 * * *", backupScriptPath(p), StepBackupScript, StepDatabaseRole))
	}

	// SSH hardening.
	if p.Toggles.SSHHardening {
		if err := add(sshConfigStep(p)); err != nil {
			return nil, err
		}
		list = append(list, NewServiceReload(StepSSHReload, engine.PolicyContinue, h.Services, "ssh", StepSSHConfig))
	}

	return engine.NewPlan(list)
}

func appPackage(e config.Edition) string {
	if e == config.EditionEnterprise {
		return appPackageEnterprise
	}
	return appPackageCommunity
}

// databaseRoleStep ensures the application's postgres role exists. Probing
// and creation both run as the postgres superuser.
func databaseRoleStep(p config.Profile, h Hosts) *Command {
	asPostgres := h.Runner.As("postgres")
	probe := runner.Command{
		Name: "sh",
		Args: []string{"-c", fmt.Sprintf(
			`psql -tAc "SELECT 1 FROM pg_roles WHERE rolname='%s'" | grep -q 1`, p.Instance)},
	}
	apply := runner.Command{
		Name: "createuser",
		Args: []string{"--createdb", "--no-superuser", "--no-createrole", p.Instance},
	}
	return NewCommand(StepDatabaseRole, engine.PolicyFatal, asPostgres, probe, apply, StepPostgresService)
}

func appConfigStep(p config.Profile) (*TemplateWrite, error) {
	data := struct {
		Instance        string
		HTTPPort        int
		GatewayPort     int
		Workers         int
		MemoryHardBytes int64
		MemorySoftBytes int64
		AdminPassword   string
		ProxyMode       bool
	}{
		Instance:        p.Instance,
		HTTPPort:        p.HTTPPort,
		GatewayPort:     p.GatewayPort,
		Workers:         p.Limits.Workers,
		MemoryHardBytes: p.Limits.MemoryHardBytes,
		MemorySoftBytes: p.Limits.MemorySoftBytes,
		ProxyMode:       p.Toggles.ReverseProxy,
	}
	// A fixed password is rendered into the config. Under the generated
	// policy the application mints its own secret on first boot, keeping the
	// rendered file deterministic.
	if p.PasswordPolicy == config.PasswordFixed {
		data.AdminPassword = p.AdminPassword
	}
	return NewTemplateWrite(StepAppConfig, engine.PolicyFatal,
		fmt.Sprintf("/etc/%s/server.conf", p.Instance), os.FileMode(0o640), p.SystemUserName(),
		appConfigTemplate, data,
		StepAppUser, StepAppPackage, StepDatabaseRole)
}

func serviceUnitStep(p config.Profile) (*TemplateWrite, error) {
	data := struct {
		Instance  string
		ExecStart string
	}{
		Instance:  p.Instance,
		ExecStart: "/usr/bin/" + appPackage(p.Edition),
	}
	return NewTemplateWrite(StepServiceUnit, engine.PolicyFatal,
		fmt.Sprintf("/etc/systemd/system/%s", p.ServiceName()), os.FileMode(0o644), "",
		serviceUnitTemplate, data,
		StepAppConfig)
}

func proxyConfigStep(p config.Profile) (*TemplateWrite, error) {
	serverName := "_"
	if p.HasDomain() {
		serverName = p.Domain
	}
	data := struct {
		Instance    string
		HTTPPort    int
		GatewayPort int
		ServerName  string
	}{
		Instance:    p.Instance,
		HTTPPort:    p.HTTPPort,
		GatewayPort: p.GatewayPort,
		ServerName:  serverName,
	}
	return NewTemplateWrite(StepProxyConfig, engine.PolicyFatal,
		fmt.Sprintf("/etc/nginx/conf.d/%s.conf", p.Instance), os.FileMode(0o644), "",
		proxyConfigTemplate, data,
		StepProxyService, StepAppService)
}

// firewallRules lists the allow rules for the profile. SSH stays open so
// enabling the firewall cannot lock the operator out. With a reverse proxy
// in front only the web ports are exposed; otherwise the application ports
// are opened directly.
func firewallRules(p config.Profile) []host.Rule {
	rules := []host.Rule{{Port: 22, Proto: "tcp"}}
	if p.Toggles.ReverseProxy {
		rules = append(rules,
			host.Rule{Port: 80, Proto: "tcp"},
			host.Rule{Port: 443, Proto: "tcp"},
		)
		return rules
	}
	rules = append(rules,
		host.Rule{Port: p.HTTPPort, Proto: "tcp"},
		host.Rule{Port: p.GatewayPort, Proto: "tcp"},
	)
	return rules
}

func backupScriptPath(p config.Profile) string {
	return fmt.Sprintf("/usr/local/sbin/%s-backup", p.Instance)
}

func backupScriptStep(p config.Profile) (*TemplateWrite, error) {
	data := struct {
		Instance      string
		RetentionDays int
	}{
		Instance:      p.Instance,
		RetentionDays: backupRetentionDays,
	}
	return NewTemplateWrite(StepBackupScript, engine.PolicyContinue,
		backupScriptPath(p), os.FileMode(0o750), "",
		backupScriptTemplate, data,
		StepDatabaseRole)
}

func sshConfigStep(p config.Profile) (*TemplateWrite, error) {
	return NewTemplateWrite(StepSSHConfig, engine.PolicyContinue,
		"/etc/ssh/sshd_config.d/50-hardening.conf", os.FileMode(0o644), "",
		sshdHardeningTemplate, struct{}{})
}
