package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tgo/captain/knowdesk/internal/extractor"
)

// HostAllowed reports whether host is one of domains or a subdomain of one.
// Matching is on label boundaries: "inst.edu" admits "www.inst.edu" but not
// "evil-inst.edu" or "inst.edu.attacker.com".
func HostAllowed(host string, domains []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func URLAllowed(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return HostAllowed(u.Hostname(), domains)
}

func normalizeStartURL(raw string) (string, error) {
	u := extractor.ResolveLink(nil, raw)
	if u == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidRequest, raw)
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidRequest, raw)
	}
	return u, nil
}
