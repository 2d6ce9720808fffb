package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// CertbotIssuer implements CertificateIssuer using the certbot CLI with the
// nginx installer plugin.
type CertbotIssuer struct {
	run runner.Runner
}

// NewCertbotIssuer creates a certbot-backed certificate issuer.
func NewCertbotIssuer(run runner.Runner) *CertbotIssuer {
	return &CertbotIssuer{run: run}
}

// HasCertificate implements CertificateIssuer.
func (c *CertbotIssuer) HasCertificate(ctx context.Context, domain string) (bool, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Name: "certbot",
		Args: []string{"certificates", "--cert-name", domain},
	})
	if err != nil {
		return false, fmt.Errorf("querying certificate for %s: %w", domain, err)
	}
	if res.ExitCode != 0 {
		// certbot exits non-zero when its config directory is missing or
		// unreadable; the caller treats that as an ambiguous probe.
		return false, fmt.Errorf("certbot certificates failed (exit %d): %s", res.ExitCode, res.StderrTail(256))
	}
	return strings.Contains(res.Stdout, "Certificate Name: "+domain), nil
}

// Obtain implements CertificateIssuer. Re-running against an existing
// certificate reinstalls rather than reissuing, so Apply stays idempotent
// and does not burn CA rate limits.
func (c *CertbotIssuer) Obtain(ctx context.Context, domain, email string) error {
	res, err := c.run.Run(ctx, runner.Command{
		Name: "certbot",
		Args: []string{
			"--nginx",
			"-d", domain,
			"-m", email,
			"--agree-tos",
			"--non-interactive",
			"--redirect",
			"--keep-until-expiring",
		},
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("certbot for %s failed (exit %d): %s", domain, res.ExitCode, res.StderrTail(512))
	}
	return nil
}
