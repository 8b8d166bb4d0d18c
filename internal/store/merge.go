package store

import (
	"fmt"
	"strings"

	"github.com/civicgraph/harvester/internal/crawler"
)

// normalizeName lowers and space-collapses a name for identity matching.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// orgIdentityKey derives the identity key for an organization fact. The
// website's registrable domain wins when present; otherwise the normalized
// name. Organizations with the same name but different domains stay distinct.
func orgIdentityKey(name, website string) (string, error) {
	if domain := crawler.CanonicalDomain(website); domain != "" {
		return "domain:" + domain, nil
	}
	if norm := normalizeName(name); norm != "" {
		return "name:" + norm, nil
	}
	return "", fmt.Errorf("organization fact has neither website nor name")
}

// projectIdentityKey scopes a project's identity to its owning organization.
func projectIdentityKey(orgID, name string) (string, error) {
	norm := normalizeName(name)
	if norm == "" {
		return "", fmt.Errorf("project fact has no name")
	}
	return orgID + "|" + norm, nil
}

// preferLonger implements the free-text merge rule: a longer incoming value
// replaces a shorter stored one, never the reverse. Returns the winning value
// and whether it changed.
func preferLonger(stored, incoming string) (string, bool) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return stored, false
	}
	if len(incoming) > len(stored) {
		return incoming, true
	}
	return stored, false
}

// fillEmpty replaces an empty stored field with a non-empty incoming one.
func fillEmpty(stored, incoming string) (string, bool) {
	incoming = strings.TrimSpace(incoming)
	if stored == "" && incoming != "" {
		return incoming, true
	}
	return stored, false
}

// mergeOrganization applies the "prefer more information" rules to an
// existing record. Reports whether anything material changed.
func mergeOrganization(rec *OrganizationRecord, fact crawler.OrganizationFact) bool {
	changed := false
	if v, ok := fillEmpty(rec.Name, fact.Name); ok {
		rec.Name = v
		changed = true
	}
	if v, ok := preferLonger(rec.Description, fact.Description); ok {
		rec.Description = v
		changed = true
	}
	if v, ok := fillEmpty(rec.Website, fact.Website); ok {
		rec.Website = v
		changed = true
	}
	if v, ok := fillEmpty(rec.ContactEmail, fact.ContactEmail); ok {
		rec.ContactEmail = v
		changed = true
	}
	return changed
}

// mergeProject merges a sighting into an existing project record. Source URLs
// accumulate as a set.
func mergeProject(rec *ProjectRecord, fact crawler.ProjectFact) bool {
	changed := false
	if v, ok := preferLonger(rec.Summary, fact.Summary); ok {
		rec.Summary = v
		changed = true
	}
	if url := strings.TrimSpace(fact.SourceURL); url != "" && !containsString(rec.SourceURLs, url) {
		rec.SourceURLs = append(rec.SourceURLs, url)
		changed = true
	}
	return changed
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
