// internal/auth/patterns.go
package auth

import (
	"net/url"
	"strings"
)

// MatchesAny reports whether rawURL contains any of patterns, case-insensitively.
func MatchesAny(rawURL string, patterns []string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// SameHost reports whether a and b point at the same host. An unparsable or
// host-less target matches any URL.
func SameHost(target, current string) bool {
	t, err := url.Parse(target)
	if err != nil || t.Host == "" {
		return true
	}
	c, err := url.Parse(current)
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Hostname(), c.Hostname())
}
