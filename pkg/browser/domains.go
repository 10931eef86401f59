package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DomainMatcher decides which hosts a session may load. Patterns are globs
// over host names with '.' as the separator, so "*.example.com" matches
// "docs.example.com" but not "a.b.example.com". Use "**.example.com" for
// any depth.
type DomainMatcher struct {
	patterns []glob.Glob
}

// NewDomainMatcher compiles patterns. An empty list allows every host.
func NewDomainMatcher(patterns []string) (*DomainMatcher, error) {
	m := &DomainMatcher{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid domain pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Unrestricted reports whether the matcher allows everything.
func (m *DomainMatcher) Unrestricted() bool {
	return m == nil || len(m.patterns) == 0
}

// AllowsURL reports whether a request to rawURL may proceed. Non-network
// schemes such as about:, data: and blob: are always allowed.
func (m *DomainMatcher) AllowsURL(rawURL string) bool {
	if m.Unrestricted() {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return true
	}
	return m.AllowsHost(u.Hostname())
}

// AllowsHost reports whether host matches any pattern.
func (m *DomainMatcher) AllowsHost(host string) bool {
	if m.Unrestricted() {
		return true
	}
	host = strings.ToLower(host)
	for _, g := range m.patterns {
		if g.Match(host) {
			return true
		}
	}
	return false
}
