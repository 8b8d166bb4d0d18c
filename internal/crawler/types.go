// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// CrawlTarget is one pending entry in the frontier. Targets are created when
// a link is discovered or a seed is admitted, consumed exactly once by the
// controller, and never mutated afterwards.
type CrawlTarget struct {
	URL    string
	Depth  int
	Origin string
}

// VisitOutcome records how a fetch attempt ended.
type VisitOutcome string

// Visit outcomes tracked by the dedup index.
const (
	VisitSuccess VisitOutcome = "success"
	VisitFailure VisitOutcome = "failure"
)

// VisitRecord marks one URL fingerprint as seen. At most one VisitRecord
// exists per fingerprint for the lifetime of a run.
type VisitRecord struct {
	Fingerprint string
	VisitedAt   time.Time
	Outcome     VisitOutcome
}

// PageSnapshot is the captured representation of one fetched page, produced
// by a Fetcher and handed to the Reflector. It is read-only input; the core
// never persists it.
type PageSnapshot struct {
	URL       string
	Title     string
	HTML      string
	Text      string
	Links     []string
	FetchedAt time.Time
}

// OrganizationFact is one extracted sighting of an organization. Any field
// except Name may be empty.
type OrganizationFact struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Website      string `json:"website"`
	ContactEmail string `json:"contact_email"`
}

// ProjectFact is one extracted sighting of a project, with enough context to
// resolve (or create) its owning organization.
type ProjectFact struct {
	Name                string `json:"name"`
	Summary             string `json:"summary"`
	OrganizationName    string `json:"organization_name"`
	OrganizationWebsite string `json:"organization_website"`
	SourceURL           string `json:"source_url"`
}

// ExtractionResult is what the reflect collaborator returns for a snapshot.
// It is treated as untrusted and partial: every field may be empty.
type ExtractionResult struct {
	Organizations []OrganizationFact `json:"organizations"`
	Projects      []ProjectFact      `json:"projects"`
	NextURLs      []string           `json:"next_urls"`
}

// TopicContext scopes reflect calls to one research topic.
type TopicContext struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Terms       []string `json:"terms"`
}

// StopBudget is the immutable termination configuration for one run.
type StopBudget struct {
	MaxActions       int
	MaxWallClock     time.Duration
	PlateauWindow    int
	PlateauThreshold float64
}

// Validate enforces that the budget can actually terminate a run.
func (b StopBudget) Validate() error {
	switch {
	case b.MaxActions <= 0:
		return errBudgetActions
	case b.MaxWallClock <= 0:
		return errBudgetWallClock
	case b.PlateauWindow <= 0:
		return errBudgetWindow
	case b.PlateauWindow >= b.MaxActions:
		return errBudgetWindowTooLarge
	case b.PlateauThreshold < 0:
		return errBudgetThreshold
	}
	return nil
}

// StopReason tells why a run ended (or that it has not).
type StopReason string

// Terminal and non-terminal run states.
const (
	ReasonRunning           StopReason = "running"
	ReasonBudget            StopReason = "budget"
	ReasonPlateau           StopReason = "plateau"
	ReasonFrontierExhausted StopReason = "frontier_exhausted"
	ReasonFatalPrecondition StopReason = "fatal_precondition"
	ReasonCanceled          StopReason = "canceled"
)

// RunReport is the outcome summary returned for every run, successful or
// degraded. Degraded runs are still completed runs, not errors.
type RunReport struct {
	RunID           string     `json:"run_id"`
	Topic           string     `json:"topic"`
	StopReason      StopReason `json:"stop_reason"`
	PagesVisited    int        `json:"pages_visited"`
	PagesFailed     int        `json:"pages_failed"`
	ReflectFailed   int        `json:"reflect_failed"`
	TargetsSkipped  int        `json:"targets_skipped"`
	LinksDiscovered int        `json:"links_discovered"`
	OrgsCreated     int        `json:"orgs_created"`
	OrgsUpdated     int        `json:"orgs_updated"`
	ProjectsCreated int        `json:"projects_created"`
	ProjectsUpdated int        `json:"projects_updated"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
}

// UpsertResult reports what an upsert did to the dataset.
type UpsertResult struct {
	ID      string
	Created bool
	Changed bool
}
