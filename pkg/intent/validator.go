package intent

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/webpilot/pkg/step"
)

// Decision is the outcome of validating one proposed action.
type Decision struct {
	Approved bool
	Reason   string
}

// Validator checks proposed actions against a locked intent. It is a pure
// function of the intent and the proposed action; building one compiles the
// intent's domain patterns exactly once.
type Validator struct {
	intent   *LockedIntent
	patterns []glob.Glob
	anyHost  bool
}

// NewValidator compiles a validator for the intent. Invalid domain patterns
// are rejected up front so a malformed intent cannot silently allow nothing.
func NewValidator(li *LockedIntent) (*Validator, error) {
	v := &Validator{intent: li}
	for _, pattern := range li.allowedDomains {
		if pattern == "*" {
			v.anyHost = true
			continue
		}
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid domain pattern %q: %w", pattern, err)
		}
		v.patterns = append(v.patterns, g)
	}
	return v, nil
}

// Intent returns the locked intent this validator enforces.
func (v *Validator) Intent() *LockedIntent { return v.intent }

// Validate approves the action only if its kind is in the intent's allowed
// actions and the target page's domain matches an allowed domain pattern.
// It has no side effects.
func (v *Validator) Validate(kind step.Kind, pageURL string) Decision {
	if !v.intent.AllowsAction(kind) {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("action %q is not permitted by the locked intent", kind),
		}
	}

	host, err := hostOf(pageURL)
	if err != nil {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("cannot determine domain of %q: %v", pageURL, err),
		}
	}

	if !v.allowsHost(host) {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("domain %q is not allowed by the locked intent", host),
		}
	}

	return Decision{Approved: true}
}

func (v *Validator) allowsHost(host string) bool {
	if v.anyHost {
		return true
	}
	host = strings.ToLower(host)
	for _, g := range v.patterns {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// hostOf extracts the hostname from a URL, tolerating bare hosts and
// scheme-less values like "example.com/path".
func hostOf(rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty url")
	}
	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return u.Hostname(), nil
}
