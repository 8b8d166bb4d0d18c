package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

type stubHasher struct{}

func (stubHasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*DatasetStore, *stubClock) {
	t.Helper()
	clock := &stubClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(Config{Dir: t.TempDir()}, stubHasher{}, clock, zap.NewNop())
	require.NoError(t, err)
	return s, clock
}

func TestNewRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, stubHasher{}, &stubClock{}, zap.NewNop())
	require.Error(t, err)
}

func TestUpsertOrganizationCreatesThenMerges(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:    "Kyiv Volunteers",
		Website: "https://www.kyiv-volunteers.org/",
	})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.False(t, first.Changed)
	require.Contains(t, first.ID, "org-")
	require.Len(t, first.ID, len("org-")+16)

	// Identical sighting is a no-op.
	again, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:    "Kyiv Volunteers",
		Website: "https://www.kyiv-volunteers.org/",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.False(t, again.Created)
	require.False(t, again.Changed)

	// A richer sighting of the same domain merges in place.
	clock.now = clock.now.Add(time.Hour)
	richer, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:         "Kyiv Volunteers",
		Website:      "https://kyiv-volunteers.org",
		Description:  "Coordinates humanitarian aid deliveries across the Kyiv region.",
		ContactEmail: "info@kyiv-volunteers.org",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, richer.ID)
	require.False(t, richer.Created)
	require.True(t, richer.Changed)

	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "info@kyiv-volunteers.org", orgs[0].ContactEmail)
	require.NotEmpty(t, orgs[0].Description)
	require.True(t, orgs[0].UpdatedAt.After(orgs[0].CreatedAt))
}

func TestUpsertOrganizationSameNameDifferentDomains(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{Name: "Hope Fund", Website: "https://hopefund.org"})
	require.NoError(t, err)
	b, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{Name: "Hope Fund", Website: "https://hopefund.ua"})
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
}

func TestUpsertOrganizationNameOnlyMergesIntoDomainRecord(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	keyed, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{Name: "Razom", Website: "https://razom.example.org"})
	require.NoError(t, err)

	// Later page mentions the organization by name only; the sighting folds
	// into the domain-keyed record instead of creating a duplicate.
	res, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:        "razom",
		Description: "Supports frontline communities with medical supplies.",
	})
	require.NoError(t, err)
	require.Equal(t, keyed.ID, res.ID)
	require.False(t, res.Created)
	require.True(t, res.Changed)

	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
}

func TestUpsertOrganizationWebsiteCompletesNameRecord(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	nameOnly, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{Name: "Svitlo"})
	require.NoError(t, err)
	require.True(t, nameOnly.Created)

	// The organization later turns up with its website; the sighting
	// completes the existing record instead of opening a second one.
	sited, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:    "Svitlo",
		Website: "https://svitlo.org",
	})
	require.NoError(t, err)
	require.Equal(t, nameOnly.ID, sited.ID)
	require.False(t, sited.Created)
	require.True(t, sited.Changed)

	// Further sightings of that website keep resolving to the same record.
	repeat, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:        "Svitlo",
		Website:     "https://www.svitlo.org/",
		Description: "Runs community support centers across the region.",
	})
	require.NoError(t, err)
	require.Equal(t, nameOnly.ID, repeat.ID)

	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "https://svitlo.org", orgs[0].Website)

	// A same-name organization on a different domain still stays separate.
	other, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:    "Svitlo",
		Website: "https://svitlo.ua",
	})
	require.NoError(t, err)
	require.NotEqual(t, nameOnly.ID, other.ID)

	orgs, err = s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
}

func TestUpsertOrganizationMergeIsCommutative(t *testing.T) {
	t.Parallel()

	factA := crawler.OrganizationFact{
		Name:        "Svitlo",
		Website:     "https://svitlo.org",
		Description: "Short blurb.",
	}
	factB := crawler.OrganizationFact{
		Name:         "Svitlo Charity Foundation",
		Website:      "https://svitlo.org",
		Description:  "Runs rehabilitation programs for displaced families in western Ukraine.",
		ContactEmail: "hello@svitlo.org",
	}

	apply := func(t *testing.T, facts ...crawler.OrganizationFact) OrganizationRecord {
		s, _ := newTestStore(t)
		for _, f := range facts {
			_, err := s.UpsertOrganization(context.Background(), f)
			require.NoError(t, err)
		}
		orgs, err := s.Organizations(context.Background())
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		return orgs[0]
	}

	ab := apply(t, factA, factB)
	ba := apply(t, factB, factA)

	require.Equal(t, ab.ID, ba.ID)
	require.Equal(t, ab.Description, ba.Description)
	require.Equal(t, ab.Website, ba.Website)
	require.Equal(t, ab.ContactEmail, ba.ContactEmail)
}

func TestUpsertProjectCreatesOwningOrganization(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertProject(ctx, crawler.ProjectFact{
		Name:             "Winter Heaters",
		Summary:          "Delivers heaters to shelters before winter.",
		OrganizationName: "Warm Homes",
		SourceURL:        "https://warmhomes.org/projects/heaters",
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Contains(t, res.ID, "prj-")

	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)

	projects, err := s.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, orgs[0].ID, projects[0].OrganizationID)
}

func TestUpsertProjectRequiresOrganization(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.UpsertProject(context.Background(), crawler.ProjectFact{Name: "Orphan Project"})
	require.Error(t, err)

	projects, err := s.Projects(context.Background())
	require.NoError(t, err)
	require.Empty(t, projects)
}

func TestUpsertProjectAccumulatesSourceURLs(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	base := crawler.ProjectFact{
		Name:             "Mobile Clinic",
		OrganizationName: "Medics United",
		SourceURL:        "https://medics.example/clinic",
	}
	first, err := s.UpsertProject(ctx, base)
	require.NoError(t, err)
	require.True(t, first.Created)

	second := base
	second.SourceURL = "https://news.example/story"
	res, err := s.UpsertProject(ctx, second)
	require.NoError(t, err)
	require.Equal(t, first.ID, res.ID)
	require.True(t, res.Changed)

	// Repeating a known URL changes nothing.
	res, err = s.UpsertProject(ctx, second)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.False(t, res.Changed)

	projects, err := s.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.ElementsMatch(t,
		[]string{"https://medics.example/clinic", "https://news.example/story"},
		projects[0].SourceURLs)
}

func TestCollectionsWrittenAtomically(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProject(ctx, crawler.ProjectFact{
		Name:             "Generator Drive",
		OrganizationName: "Power Together",
	})
	require.NoError(t, err)

	// No temp files survive a completed revision swap.
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}

	// Both collections parse as complete JSON documents.
	var orgs []OrganizationRecord
	data, err := os.ReadFile(s.orgPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &orgs))

	var projects []ProjectRecord
	data, err = os.ReadFile(s.projPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &projects))
}

func TestStaleTempFileDoesNotAffectReadersOrWriters(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:    "Power Together",
		Website: "https://powertogether.org",
	})
	require.NoError(t, err)

	// A writer that died mid-temp-file leaves garbage behind; readers keep
	// seeing the last completed revision.
	require.NoError(t, os.WriteFile(s.orgPath+".tmp", []byte(`[{"id": "org-tr`), 0o600))

	orgs, err := s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "Power Together", orgs[0].Name)

	// The next upsert truncates the garbage and swaps in a complete revision.
	res, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{
		Name:        "Power Together",
		Website:     "https://powertogether.org",
		Description: "Installs generators at hospitals and shelters.",
	})
	require.NoError(t, err)
	require.True(t, res.Changed)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}

	orgs, err = s.Organizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.NotEmpty(t, orgs[0].Description)
}

func TestCorruptCollectionRejectedNotWiped(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(s.orgPath, []byte("{not json"), 0o600))

	_, err := s.UpsertOrganization(context.Background(), crawler.OrganizationFact{Name: "Anyone"})
	require.Error(t, err)

	// The corrupt file is left for the operator; nothing overwrote it.
	data, err := os.ReadFile(s.orgPath)
	require.NoError(t, err)
	require.Equal(t, "{not json", string(data))
}

func TestUpsertBlockedByForeignLock(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, lockFile), []byte("99999\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := s.UpsertOrganization(ctx, crawler.OrganizationFact{Name: "Blocked"})
	require.Error(t, err)

	_, statErr := os.Stat(s.orgPath)
	require.True(t, os.IsNotExist(statErr))
}
