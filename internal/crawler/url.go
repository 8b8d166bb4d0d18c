package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Query parameters that carry tracking noise rather than content identity.
// Two URLs differing only in these must fingerprint identically.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

// Canonicalize standardizes a URL so equivalent spellings dedup to one
// fingerprint. It lowercases scheme and host, removes default ports, drops
// the fragment and tracking query parameters, sorts the remaining query, and
// collapses trailing-slash variants. Malformed or non-HTTP URLs are rejected
// with an error so the controller can report a skipped target.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.User = nil

	q := u.Query()
	for key := range q {
		if _, noise := trackingParams[strings.ToLower(key)]; noise {
			q.Del(key)
			continue
		}
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	switch u.Path {
	case "", "/":
		u.Path = "/"
	default:
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// HostOf returns the lowercase hostname of a canonical URL, or "" when the
// URL does not parse.
func HostOf(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// CanonicalDomain reduces a website URL to its registrable host for identity
// matching: lowercase, www-stripped. Bare hosts without a scheme are
// accepted. Returns "" when nothing host-like is present.
func CanonicalDomain(website string) string {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}
