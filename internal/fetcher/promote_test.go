package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

type fakeFetcher struct {
	snap  crawler.PageSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (crawler.PageSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

type fakeDetector struct {
	promote bool
}

func (d fakeDetector) ShouldPromote(string) bool { return d.promote }

func TestPromotingKeepsProbeSnapshot(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{snap: crawler.PageSnapshot{URL: "https://a.example", HTML: "<html>full</html>"}}
	headless := &fakeFetcher{snap: crawler.PageSnapshot{URL: "https://a.example", HTML: "rendered"}}

	p := NewPromoting(probe, headless, fakeDetector{promote: false}, zap.NewNop())
	snap, err := p.Fetch(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.Equal(t, "<html>full</html>", snap.HTML)
	require.Zero(t, headless.calls)
}

func TestPromotingRerunsScriptShells(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{snap: crawler.PageSnapshot{HTML: `<div id="root"></div>`}}
	headless := &fakeFetcher{snap: crawler.PageSnapshot{HTML: "<html>rendered</html>"}}

	p := NewPromoting(probe, headless, fakeDetector{promote: true}, zap.NewNop())
	snap, err := p.Fetch(context.Background(), "https://spa.example")
	require.NoError(t, err)
	require.Equal(t, "<html>rendered</html>", snap.HTML)
	require.Equal(t, 1, headless.calls)
}

func TestPromotingFallsBackWhenHeadlessFails(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{snap: crawler.PageSnapshot{HTML: "shell"}}
	headless := &fakeFetcher{err: errors.New("browser crashed")}

	p := NewPromoting(probe, headless, fakeDetector{promote: true}, zap.NewNop())
	snap, err := p.Fetch(context.Background(), "https://spa.example")
	require.NoError(t, err)
	require.Equal(t, "shell", snap.HTML)
}

func TestPromotingPropagatesProbeError(t *testing.T) {
	t.Parallel()

	wantErr := &crawler.FetchError{Kind: crawler.FetchNetwork, URL: "https://down.example", Err: errors.New("refused")}
	probe := &fakeFetcher{err: wantErr}

	p := NewPromoting(probe, nil, nil, zap.NewNop())
	_, err := p.Fetch(context.Background(), "https://down.example")
	require.ErrorIs(t, err, wantErr)
}
