package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicgraph/harvester/internal/crawler"
)

func TestOrgIdentityKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		orgName string
		website string
		want    string
		wantErr bool
	}{
		{name: "domain wins over name", orgName: "Hope Fund", website: "https://www.HopeFund.org/about", want: "domain:hopefund.org"},
		{name: "name fallback", orgName: "  Hope   Fund  ", want: "name:hope fund"},
		{name: "bare host website", orgName: "", website: "hopefund.org", want: "domain:hopefund.org"},
		{name: "nothing to key on", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := orgIdentityKey(tt.orgName, tt.website)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProjectIdentityKeyScopedToOrganization(t *testing.T) {
	t.Parallel()

	a, err := projectIdentityKey("org-aaaa", "Mobile Clinic")
	require.NoError(t, err)
	b, err := projectIdentityKey("org-bbbb", "Mobile Clinic")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = projectIdentityKey("org-aaaa", "   ")
	require.Error(t, err)
}

func TestMergeOrganizationPrefersMoreInformation(t *testing.T) {
	t.Parallel()

	rec := OrganizationRecord{
		Name:        "Svitlo",
		Description: "Short.",
		Website:     "https://svitlo.org",
	}

	changed := mergeOrganization(&rec, crawler.OrganizationFact{
		Description:  "A much longer description of what the foundation actually does.",
		ContactEmail: "hello@svitlo.org",
	})
	require.True(t, changed)
	require.Equal(t, "A much longer description of what the foundation actually does.", rec.Description)
	require.Equal(t, "hello@svitlo.org", rec.ContactEmail)

	// A shorter description never displaces a longer one, and filled fields
	// stay as they are.
	changed = mergeOrganization(&rec, crawler.OrganizationFact{
		Description:  "Short.",
		ContactEmail: "other@svitlo.org",
		Website:      "https://other.example",
	})
	require.False(t, changed)
	require.Equal(t, "https://svitlo.org", rec.Website)
	require.Equal(t, "hello@svitlo.org", rec.ContactEmail)
}

func TestMergeProjectUnionsSources(t *testing.T) {
	t.Parallel()

	rec := ProjectRecord{Name: "Winter Heaters", SourceURLs: []string{"https://a.example"}}

	require.True(t, mergeProject(&rec, crawler.ProjectFact{SourceURL: "https://b.example"}))
	require.False(t, mergeProject(&rec, crawler.ProjectFact{SourceURL: "https://b.example"}))
	require.Equal(t, []string{"https://a.example", "https://b.example"}, rec.SourceURLs)
}
