package domain

import (
	"net/url"
	"strings"
)

// DomainOf returns the lower-cased host of rawURL without a leading "www.".
// Bare hosts ("cvs.com") are accepted.
func DomainOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// DomainMatches reports whether domain equals base or is a subdomain of it.
func DomainMatches(domain, base string) bool {
	return domain == base || strings.HasSuffix(domain, "."+base)
}
