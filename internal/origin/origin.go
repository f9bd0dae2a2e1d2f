// Package origin decides which browser origins may call the API across
// domains.
//
// A Policy is an ordered list of rules evaluated first-match-wins. It has no
// HTTP dependency so the decision can be audited and tested on its own; the
// server package translates a denial into a rejected request.
package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotAllowed is returned for origins no rule admits.
var ErrNotAllowed = errors.New("The CORS policy for this site does not allow access from the specified Origin.")

// Default rule inputs for the AIMS deployment.
const (
	PreviewScheme     = "https"
	PreviewHostPrefix = "aims-vikash-mehras-projects-"
	PreviewHostSuffix = ".vercel.app"
)

// DefaultDevOrigins are the local frontend dev servers.
var DefaultDevOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
}

// Rule admits an origin.
type Rule interface {
	Match(origin string) bool
	String() string
}

// Exact admits a single origin by byte-for-byte comparison.
type Exact string

func (e Exact) Match(origin string) bool {
	return string(e) == origin
}

func (e Exact) String() string {
	return "exact " + string(e)
}

// Pattern admits origins whose scheme equals Scheme and whose host is
// HostPrefix, a non-empty segment, then HostSuffix. Origins carrying a path,
// query, fragment or userinfo never match.
type Pattern struct {
	Scheme     string
	HostPrefix string
	HostSuffix string
}

func (p Pattern) Match(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if parsed.Scheme != p.Scheme || parsed.Opaque != "" || parsed.User != nil {
		return false
	}
	if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" || parsed.ForceQuery {
		return false
	}
	host := parsed.Host
	if len(host) <= len(p.HostPrefix)+len(p.HostSuffix) {
		return false
	}
	return strings.HasPrefix(host, p.HostPrefix) && strings.HasSuffix(host, p.HostSuffix)
}

func (p Pattern) String() string {
	return fmt.Sprintf("pattern %s://%s*%s", p.Scheme, p.HostPrefix, p.HostSuffix)
}

// PreviewDeployments matches the hosted production and preview frontends.
func PreviewDeployments() Pattern {
	return Pattern{Scheme: PreviewScheme, HostPrefix: PreviewHostPrefix, HostSuffix: PreviewHostSuffix}
}

// Policy is an immutable ordered rule list. The zero value denies every
// browser origin.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from rules in evaluation order. Nil rules are
// skipped.
func NewPolicy(rules ...Rule) Policy {
	kept := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule != nil {
			kept = append(kept, rule)
		}
	}
	return Policy{rules: kept}
}

// DefaultPolicy returns the deployment policy: the dev servers, the configured
// client origin when set, and the preview deployment pattern.
func DefaultPolicy(clientOrigin string) Policy {
	rules := make([]Rule, 0, len(DefaultDevOrigins)+2)
	for _, dev := range DefaultDevOrigins {
		rules = append(rules, Exact(dev))
	}
	if trimmed := strings.TrimSpace(clientOrigin); trimmed != "" {
		rules = append(rules, Exact(trimmed))
	}
	rules = append(rules, PreviewDeployments())
	return NewPolicy(rules...)
}

// Check returns nil when origin is empty or admitted by a rule, and an error
// wrapping ErrNotAllowed otherwise.
func (p Policy) Check(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil
	}
	for _, rule := range p.rules {
		if rule.Match(origin) {
			return nil
		}
	}
	return fmt.Errorf("origin %q: %w", origin, ErrNotAllowed)
}

// Allows reports whether Check admits origin.
func (p Policy) Allows(origin string) bool {
	return p.Check(origin) == nil
}

// Rules returns a copy of the rule list in evaluation order.
func (p Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}
