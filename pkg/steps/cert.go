package steps

import (
	"context"
	"fmt"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/host"
)

// CertificateIssue ensures a TLS certificate exists for a domain.
type CertificateIssue struct {
	base
	domain string
	email  string
	issuer host.CertificateIssuer
}

// NewCertificateIssue creates a certificate issuance step.
func NewCertificateIssue(name string, policy engine.FailurePolicy, issuer host.CertificateIssuer, domain, email string, requires ...string) *CertificateIssue {
	return &CertificateIssue{
		base:   newBase(name, policy, requires...),
		domain: domain,
		email:  email,
		issuer: issuer,
	}
}

// Check implements engine.Step.
func (s *CertificateIssue) Check(ctx context.Context) (engine.CheckState, error) {
	has, err := s.issuer.HasCertificate(ctx, s.domain)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("querying certificate for %s: %w", s.domain, err)
	}
	if has {
		return engine.StateSatisfied, nil
	}
	return engine.StateNotSatisfied, nil
}

// Apply implements engine.Step.
func (s *CertificateIssue) Apply(ctx context.Context) error {
	return s.issuer.Obtain(ctx, s.domain, s.email)
}
