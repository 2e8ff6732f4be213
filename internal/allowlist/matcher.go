package allowlist

import (
	"net/url"
	"strings"

	"safesignal/internal/models"
)

// Matcher classifies URLs as crisis-related or not. It is stateless over an
// immutable host set built once at construction, so it is safe for concurrent
// use without locking. Lookups are O(hostname labels).
type Matcher struct {
	provider Provider
	hosts    map[string]struct{}
}

// NewMatcher builds the matcher from a provider. Domains and aliases are
// indexed lowercase.
func NewMatcher(provider Provider) *Matcher {
	hosts := make(map[string]struct{})
	for _, entry := range provider.Entries() {
		if d := strings.ToLower(strings.TrimSpace(entry.Domain)); d != "" {
			hosts[d] = struct{}{}
		}
		for _, alias := range entry.Aliases {
			if a := strings.ToLower(strings.TrimSpace(alias)); a != "" {
				hosts[a] = struct{}{}
			}
		}
	}
	return &Matcher{
		provider: provider,
		hosts:    hosts,
	}
}

// IsCrisisURL reports whether the URL points at a protected help resource.
// Matching is case-insensitive on the hostname, covers exact domains and any
// subdomain, and ignores path, query, and fragment. Malformed, empty, or
// scheme-less input classifies as non-crisis (false) rather than erroring;
// the guard path must never fail open into an exception.
func (m *Matcher) IsCrisisURL(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	// Exact match, then walk parent domains so any subdomain depth matches.
	for host != "" {
		if _, ok := m.hosts[host]; ok {
			return true
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			return false
		}
		host = host[dot+1:]
	}

	return false
}

// Entries exposes the underlying table for enumeration and testing.
func (m *Matcher) Entries() []models.AllowlistEntry {
	return m.provider.Entries()
}
