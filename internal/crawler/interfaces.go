package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves one page and returns its snapshot. Implementations are
// external collaborators (HTTP client, headless browser); the controller
// applies per-call timeouts via ctx.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (PageSnapshot, error)
}

// Reflector turns a page snapshot into extracted facts and candidate next
// URLs, scoped by the run's topic. Implementations may be flaky; any error
// degrades the step, never the run.
type Reflector interface {
	Reflect(ctx context.Context, snap PageSnapshot, topic TopicContext) (ExtractionResult, error)
}

// RecordStore persists deduplicated organization and project records with
// insert-or-merge semantics. Implementations must serialize writes across
// concurrent runs and keep every revision atomically readable.
type RecordStore interface {
	UpsertOrganization(ctx context.Context, fact OrganizationFact) (UpsertResult, error)
	UpsertProject(ctx context.Context, fact ProjectFact) (UpsertResult, error)
}

// Hasher computes digests for URL fingerprints and record identities.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
