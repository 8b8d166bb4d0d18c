package crawler

import "strings"

// domainMatcher stores exact hosts and suffix wildcards ("*.example.org" or
// ".example.org") derived from configuration.
type domainMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainMatcher(patterns []string) *domainMatcher {
	m := &domainMatcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			m.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			m.addSuffix(strings.TrimPrefix(value, "."))
		default:
			m.exact[value] = struct{}{}
		}
	}
	if len(m.exact) == 0 && len(m.suffixes) == 0 {
		return nil
	}
	return m
}

func (m *domainMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

func (m *domainMatcher) Matches(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// admission decides whether a discovered link's host may enter the frontier.
// An empty allowlist admits every host not denied; a non-empty allowlist
// admits only listed hosts.
type admission struct {
	allow *domainMatcher
	deny  *domainMatcher
}

func newAdmission(allowPatterns, denyPatterns []string) admission {
	return admission{
		allow: newDomainMatcher(allowPatterns),
		deny:  newDomainMatcher(denyPatterns),
	}
}

func (a admission) Admit(host string) bool {
	if host == "" {
		return false
	}
	if a.deny.Matches(host) {
		return false
	}
	if a.allow == nil {
		return true
	}
	return a.allow.Matches(host)
}
