package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validProfile() Profile {
	return Profile{
		Instance:       "erp1",
		HTTPPort:       8069,
		GatewayPort:    8072,
		Edition:        EditionCommunity,
		Domain:         DomainNone,
		PasswordPolicy: PasswordGenerated,
		Limits: Limits{
			Workers:         2,
			MemoryHardBytes: 2684354560,
			MemorySoftBytes: 2147483648,
		},
	}
}

func TestValidateAcceptsMinimalProfile(t *testing.T) {
	if errs := Validate(validProfile()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateFieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
		field  string
	}{
		{
			name:   "empty instance",
			mutate: func(p *Profile) { p.Instance = "" },
			field:  "instance",
		},
		{
			name:   "instance with punctuation",
			mutate: func(p *Profile) { p.Instance = "erp-one" },
			field:  "instance",
		},
		{
			name:   "uppercase instance",
			mutate: func(p *Profile) { p.Instance = "ERP1" },
			field:  "instance",
		},
		{
			name:   "http port out of range",
			mutate: func(p *Profile) { p.HTTPPort = 70000 },
			field:  "http_port",
		},
		{
			name:   "equal ports",
			mutate: func(p *Profile) { p.GatewayPort = p.HTTPPort },
			field:  "gateway_port",
		},
		{
			name:   "unknown edition",
			mutate: func(p *Profile) { p.Edition = "premium" },
			field:  "edition",
		},
		{
			name:   "malformed domain",
			mutate: func(p *Profile) { p.Domain = "not a domain" },
			field:  "domain",
		},
		{
			name:   "single label domain",
			mutate: func(p *Profile) { p.Domain = "localhost" },
			field:  "domain",
		},
		{
			name:   "malformed email",
			mutate: func(p *Profile) { p.AdminEmail = "not-an-email" },
			field:  "admin_email",
		},
		{
			name:   "placeholder email",
			mutate: func(p *Profile) { p.AdminEmail = "admin@example.com" },
			field:  "admin_email",
		},
		{
			name:   "unknown password policy",
			mutate: func(p *Profile) { p.PasswordPolicy = "rotated" },
			field:  "password_policy",
		},
		{
			name: "fixed policy without password",
			mutate: func(p *Profile) {
				p.PasswordPolicy = PasswordFixed
				p.AdminPassword = ""
			},
			field: "admin_password",
		},
		{
			name:   "zero workers",
			mutate: func(p *Profile) { p.Limits.Workers = 0 },
			field:  "limits.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			errs := Validate(p)
			if len(errs) == 0 {
				t.Fatal("expected at least one error, got none")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected an error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateTLSRequiresDomainEmailAndProxy(t *testing.T) {
	p := validProfile()
	p.TLS = true // domain is "none", email empty, proxy off

	errs := Validate(p)
	if len(errs) < 3 {
		t.Fatalf("expected errors for domain, email, and proxy, got %v", errs)
	}

	wantFields := []string{"tls", "admin_email", "toggles.reverse_proxy"}
	for _, field := range wantFields {
		found := false
		for _, e := range errs {
			if e.Field == field {
				found = true
			}
		}
		if !found {
			t.Errorf("missing error on %s in %v", field, errs)
		}
	}
}

func TestValidateTLSWithRealDomainPasses(t *testing.T) {
	p := validProfile()
	p.TLS = true
	p.Domain = "erp.acme-corp.io"
	p.AdminEmail = "ops@acme-corp.io"
	p.Toggles.ReverseProxy = true

	if errs := Validate(p); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := validProfile()
	p.Instance = ""
	p.HTTPPort = 0
	p.Edition = "premium"

	errs := Validate(p)
	if len(errs) < 3 {
		t.Fatalf("expected all violations reported together, got %v", errs)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	p, err := Parse([]byte("instance: erp1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port = %d, want %d", p.HTTPPort, DefaultHTTPPort)
	}
	if p.GatewayPort != DefaultGatewayPort {
		t.Errorf("gateway_port = %d, want %d", p.GatewayPort, DefaultGatewayPort)
	}
	if p.Edition != EditionCommunity {
		t.Errorf("edition = %q, want %q", p.Edition, EditionCommunity)
	}
	if p.Domain != DomainNone {
		t.Errorf("domain = %q, want %q", p.Domain, DomainNone)
	}
	if p.PasswordPolicy != PasswordGenerated {
		t.Errorf("password_policy = %q, want %q", p.PasswordPolicy, PasswordGenerated)
	}
	if p.Limits.Workers != DefaultWorkers {
		t.Errorf("workers = %d, want %d", p.Limits.Workers, DefaultWorkers)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("instance: erp1\nhttp_prot: 8069\n"))
	if err == nil {
		t.Fatal("expected an error for the misspelled key")
	}
	if !strings.Contains(err.Error(), "http_prot") {
		t.Errorf("error should name the unknown key, got %v", err)
	}
}

func TestParseReturnsValidationErrors(t *testing.T) {
	_, err := Parse([]byte("instance: ERP-1\nedition: premium\n"))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	if len(verrs) < 2 {
		t.Fatalf("expected multiple violations, got %v", verrs)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	raw := `instance: erp1
http_port: 9001
gateway_port: 9002
edition: enterprise
domain: erp.acme-corp.io
tls: true
admin_email: ops@acme-corp.io
password_policy: fixed
admin_password: s3cret
limits:
  workers: 4
  memory_hard_bytes: 1073741824
  memory_soft_bytes: 536870912
toggles:
  reverse_proxy: true
  firewall: true
  backups: true
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Instance != "erp1" || p.HTTPPort != 9001 || p.GatewayPort != 9002 {
		t.Errorf("unexpected ports: %+v", p)
	}
	if p.Edition != EditionEnterprise || !p.TLS || !p.Toggles.Firewall {
		t.Errorf("unexpected fields: %+v", p)
	}
	if got := p.ServiceName(); got != "erp1.service" {
		t.Errorf("ServiceName() = %q", got)
	}
	if !p.HasDomain() {
		t.Error("HasDomain() = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
