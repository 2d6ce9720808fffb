// Package config defines the typed provisioning profile and its validation.
// A profile is validated exactly once, at load time; downstream steps trust
// it and never re-validate.
package config

import (
	"encoding/json"
	"fmt"
)

// Edition selects the application edition to provision.
type Edition string

const (
	// EditionCommunity is the freely available edition.
	EditionCommunity Edition = "community"

	// EditionEnterprise is the licensed edition; it pulls the proprietary
	// addons during provisioning.
	EditionEnterprise Edition = "enterprise"
)

// PasswordPolicy selects how the application admin password is produced.
type PasswordPolicy string

const (
	// PasswordGenerated generates a random password during provisioning.
	PasswordGenerated PasswordPolicy = "generated"

	// PasswordFixed uses the password given in the profile.
	PasswordFixed PasswordPolicy = "fixed"
)

// DomainNone is the sentinel meaning "no public domain": no reverse-proxy
// server name, no TLS.
const DomainNone = "none"

// Toggles enables optional provisioning subsystems.
type Toggles struct {
	// ReverseProxy provisions nginx in front of the application.
	ReverseProxy bool `yaml:"reverse_proxy" json:"reverse_proxy"`

	// Firewall provisions ufw with allow rules for the exposed ports.
	Firewall bool `yaml:"firewall" json:"firewall"`

	// Backups installs the backup script and its cron schedule.
	Backups bool `yaml:"backups" json:"backups"`

	// SSHHardening writes the hardened sshd drop-in and reloads sshd.
	SSHHardening bool `yaml:"ssh_hardening" json:"ssh_hardening"`
}

// Limits carries numeric resource limits rendered into the application
// config.
type Limits struct {
	// Workers is the worker process count.
	Workers int `yaml:"workers" json:"workers" validate:"required,gt=0"`

	// MemoryHardBytes is the per-worker hard memory limit.
	MemoryHardBytes int64 `yaml:"memory_hard_bytes" json:"memory_hard_bytes" validate:"required,gt=0"`

	// MemorySoftBytes is the per-worker soft memory limit.
	MemorySoftBytes int64 `yaml:"memory_soft_bytes" json:"memory_soft_bytes" validate:"required,gt=0"`
}

// Profile is the validated configuration model for one provisioning run.
// It is immutable once Validate has accepted it: the plan builder and steps
// only ever read it.
type Profile struct {
	// Instance identifies this deployment on the host. Used as the system
	// user name, service name, and path component.
	Instance string `yaml:"instance" json:"instance" validate:"required,alphanum,lowercase"`

	// HTTPPort is the application's main HTTP port.
	HTTPPort int `yaml:"http_port" json:"http_port" validate:"required,gt=0,lte=65535"`

	// GatewayPort is the application's websocket/longpolling port.
	GatewayPort int `yaml:"gateway_port" json:"gateway_port" validate:"required,gt=0,lte=65535,nefield=HTTPPort"`

	// Edition is the application edition.
	Edition Edition `yaml:"edition" json:"edition" validate:"required,oneof=community enterprise"`

	// Domain is the public FQDN, or "none" when the instance is not
	// publicly named.
	Domain string `yaml:"domain" json:"domain" validate:"required"`

	// TLS requests a certificate for Domain. Requires Domain and
	// AdminEmail to be set to real values, and the reverse proxy toggle.
	TLS bool `yaml:"tls" json:"tls"`

	// AdminEmail is the operator contact, used for certificate issuance.
	AdminEmail string `yaml:"admin_email" json:"admin_email" validate:"omitempty,email"`

	// PasswordPolicy selects admin password handling.
	PasswordPolicy PasswordPolicy `yaml:"password_policy" json:"password_policy" validate:"required,oneof=generated fixed"`

	// AdminPassword is the fixed admin password; required when
	// PasswordPolicy is fixed.
	AdminPassword string `yaml:"admin_password" json:"admin_password,omitempty"`

	// Limits are the resource limits rendered into the app config.
	Limits Limits `yaml:"limits" json:"limits"`

	// Toggles enables optional subsystems.
	Toggles Toggles `yaml:"toggles" json:"toggles"`
}

// ServiceName returns the systemd unit name for the instance.
func (p Profile) ServiceName() string {
	return p.Instance + ".service"
}

// SystemUserName returns the system account the instance runs as.
func (p Profile) SystemUserName() string {
	return p.Instance
}

// HasDomain reports whether the profile names a public domain.
func (p Profile) HasDomain() bool {
	return p.Domain != "" && p.Domain != DomainNone
}

// ValidationError describes one rejected profile field.
type ValidationError struct {
	// Field is the offending field in yaml key form.
	Field string `json:"field"`

	// Message explains the rule that failed.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every rejected field so the operator fixes the
// profile in one pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	out, _ := json.Marshal(e)
	return fmt.Sprintf("%d invalid profile field(s): %s", len(e), out)
}
