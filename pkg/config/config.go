package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values applied before validation when the profile omits the
// corresponding keys.
const (
	DefaultHTTPPort    = 8069
	DefaultGatewayPort = 8072
	DefaultWorkers     = 2

	defaultMemoryHardBytes = 2684354560
	defaultMemorySoftBytes = 2147483648
)

// placeholderEmails are template values an operator forgot to replace. TLS
// issuance refuses them because the CA would send expiry notices into the
// void.
var placeholderEmails = map[string]bool{
	"admin@example.com":     true,
	"you@example.com":       true,
	"webmaster@example.com": true,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml keys, not Go field names, so messages match the file the
	// operator is editing.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads, decodes, defaults, and validates a profile from a YAML file.
// A ValidationErrors value is returned when one or more fields are rejected.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults, and validates a profile from YAML bytes.
func Parse(data []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	ApplyDefaults(&p)
	if errs := Validate(p); len(errs) > 0 {
		return Profile{}, errs
	}
	return p, nil
}

// ApplyDefaults fills zero-valued optional fields in place.
func ApplyDefaults(p *Profile) {
	if p.HTTPPort == 0 {
		p.HTTPPort = DefaultHTTPPort
	}
	if p.GatewayPort == 0 {
		p.GatewayPort = DefaultGatewayPort
	}
	if p.Edition == "" {
		p.Edition = EditionCommunity
	}
	if p.Domain == "" {
		p.Domain = DomainNone
	}
	if p.PasswordPolicy == "" {
		p.PasswordPolicy = PasswordGenerated
	}
	if p.Limits.Workers == 0 {
		p.Limits.Workers = DefaultWorkers
	}
	if p.Limits.MemoryHardBytes == 0 {
		p.Limits.MemoryHardBytes = defaultMemoryHardBytes
	}
	if p.Limits.MemorySoftBytes == 0 {
		p.Limits.MemorySoftBytes = defaultMemorySoftBytes
	}
}

// Validate checks every rule and returns all violations at once, never just
// the first. An empty slice means the profile is acceptable.
func Validate(p Profile) ValidationErrors {
	var errs ValidationErrors

	if err := validate.Struct(p); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			errs = append(errs, ValidationError{Field: "profile", Message: err.Error()})
			return errs
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe),
				Message: ruleMessage(fe),
			})
		}
	}

	// Cross-field rules the tag grammar cannot express.

	if p.Domain != DomainNone && !validDomain(p.Domain) {
		errs = append(errs, ValidationError{
			Field:   "domain",
			Message: fmt.Sprintf("%q is neither a fully qualified domain name nor %q", p.Domain, DomainNone),
		})
	}

	if p.TLS {
		if !p.HasDomain() {
			errs = append(errs, ValidationError{
				Field:   "tls",
				Message: fmt.Sprintf("tls requires a real domain, not %q", p.Domain),
			})
		}
		if p.AdminEmail == "" {
			errs = append(errs, ValidationError{
				Field:   "admin_email",
				Message: "tls certificate issuance requires an operator email",
			})
		}
		if !p.Toggles.ReverseProxy {
			errs = append(errs, ValidationError{
				Field:   "toggles.reverse_proxy",
				Message: "tls terminates at the reverse proxy; enable it or disable tls",
			})
		}
	}

	if p.AdminEmail != "" && placeholderEmails[strings.ToLower(p.AdminEmail)] {
		errs = append(errs, ValidationError{
			Field:   "admin_email",
			Message: fmt.Sprintf("%q is a placeholder address; set a real operator email", p.AdminEmail),
		})
	}

	if p.PasswordPolicy == PasswordFixed && p.AdminPassword == "" {
		errs = append(errs, ValidationError{
			Field:   "admin_password",
			Message: "password_policy is fixed but no admin_password was given",
		})
	}

	return errs
}

// validDomain accepts the subset of hostnames the proxy and certbot both
// handle: dot-separated labels, letters, digits, hyphens.
func validDomain(domain string) bool {
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}

func fieldPath(fe validator.FieldError) string {
	// Namespace looks like "Profile.limits.workers"; drop the struct name.
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "alphanum":
		return "must contain only letters and digits"
	case "lowercase":
		return "must be lowercase"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "nefield":
		return "must differ from " + strings.ToLower(fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	default:
		return "failed rule " + fe.Tag()
	}
}
