package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicgraph/harvester/internal/crawler"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestFetchBuildsSnapshot(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Charity Index</title></head>
<body><p>Verified organizations.</p><a href="/orgs">Browse</a></body></html>`))
	}))
	defer srv.Close()

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	f := New(Config{Timeout: 5 * time.Second}, fixedClock{now: now})

	snap, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Charity Index", snap.Title)
	require.Contains(t, snap.Text, "Verified organizations.")
	require.Equal(t, []string{srv.URL + "/orgs"}, snap.Links)
	require.Equal(t, now, snap.FetchedAt)
}

func TestFetchClassifiesBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, fixedClock{now: time.Now()})
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchBlocked, fetchErr.Kind)
}

func TestFetchClassifiesNetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := New(Config{Timeout: time.Second}, fixedClock{now: time.Now()})
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchNetwork, fetchErr.Kind)
}

func TestFetchClassifiesTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	f := New(Config{Timeout: 100 * time.Millisecond}, fixedClock{now: time.Now()})
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchTimeout, fetchErr.Kind)
}

func TestFetchHonorsContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 10 * time.Second}, fixedClock{now: time.Now()})
	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
