package research

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeWebsite standardizes a submitted website URL. A URL without a
// scheme gets https prepended; scheme and host are lowercased, default
// ports and fragments removed. The function is idempotent: normalizing
// an already-normalized URL returns it unchanged.
func NormalizeWebsite(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("website is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse website: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("website %q has no host", raw)
	}

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	return u.String(), nil
}

// SameHost reports whether candidate shares the root URL's host exactly.
// Subdomains do not match; the mapper never crawls across them.
func SameHost(rootURL, candidate string) bool {
	root, err := url.Parse(rootURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, root.Host)
}
