package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupIndexQueuedAndVisited(t *testing.T) {
	t.Parallel()

	idx := NewDedupIndex(testHasher{}, newTestClock())
	const url = "https://example.org/a"

	require.True(t, idx.ShouldVisit(url))

	// Queued URLs must not be admitted a second time before their visit.
	idx.MarkQueued(url)
	require.False(t, idx.ShouldVisit(url))

	idx.MarkVisited(url, VisitSuccess)
	require.False(t, idx.ShouldVisit(url))
	require.Equal(t, 1, idx.VisitedCount())

	rec, ok := idx.visitedAt(url)
	require.True(t, ok)
	require.Equal(t, VisitSuccess, rec.Outcome)
	require.False(t, rec.VisitedAt.IsZero())
}

func TestDedupIndexKeepsFirstRecord(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	idx := NewDedupIndex(testHasher{}, clock)
	const url = "https://example.org/a"

	idx.MarkVisited(url, VisitFailure)
	first, ok := idx.visitedAt(url)
	require.True(t, ok)

	clock.Advance(5 * time.Second)
	idx.MarkVisited(url, VisitSuccess)

	again, ok := idx.visitedAt(url)
	require.True(t, ok)
	require.Equal(t, first, again)
	require.Equal(t, 1, idx.VisitedCount())
}

func TestDedupIndexDistinctURLs(t *testing.T) {
	t.Parallel()

	idx := NewDedupIndex(testHasher{}, newTestClock())
	idx.MarkVisited("https://example.org/a", VisitSuccess)

	require.True(t, idx.ShouldVisit("https://example.org/b"))
	require.True(t, idx.ShouldVisit("https://other.example/a"))
}
