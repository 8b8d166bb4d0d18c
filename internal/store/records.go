package store

import "time"

// OrganizationRecord is one persisted organization. ID is a pure function of
// the record's identity key, so repeated sightings of the same organization
// always land on the same record.
type OrganizationRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Website      string    `json:"website,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectRecord is one persisted project. OrganizationID always resolves to
// an OrganizationRecord in the same dataset revision; a project is never
// persisted orphaned.
type ProjectRecord struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Summary        string    `json:"summary,omitempty"`
	SourceURLs     []string  `json:"source_urls,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
