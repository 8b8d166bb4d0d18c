package crawler

// DedupIndex answers "have I seen this URL" for one crawl run. It tracks both
// visited fingerprints and queued-but-unvisited fingerprints so a URL can
// never be enqueued twice before its first visit.
//
// The index is owned by exactly one controller goroutine per run; it is not
// safe for concurrent use and does not need to be.
type DedupIndex struct {
	hasher  Hasher
	clock   Clock
	visited map[string]VisitRecord
	queued  map[string]struct{}
}

// NewDedupIndex builds an empty index.
func NewDedupIndex(hasher Hasher, clock Clock) *DedupIndex {
	return &DedupIndex{
		hasher:  hasher,
		clock:   clock,
		visited: make(map[string]VisitRecord),
		queued:  make(map[string]struct{}),
	}
}

// Fingerprint hashes an already-canonicalized URL.
func (d *DedupIndex) Fingerprint(canonicalURL string) (string, error) {
	return d.hasher.Hash([]byte(canonicalURL))
}

// ShouldVisit reports whether the canonical URL is neither visited nor
// already queued.
func (d *DedupIndex) ShouldVisit(canonicalURL string) bool {
	fp, err := d.Fingerprint(canonicalURL)
	if err != nil {
		return false
	}
	if _, seen := d.visited[fp]; seen {
		return false
	}
	_, pending := d.queued[fp]
	return !pending
}

// MarkQueued records that the URL sits in the frontier awaiting its visit.
func (d *DedupIndex) MarkQueued(canonicalURL string) {
	fp, err := d.Fingerprint(canonicalURL)
	if err != nil {
		return
	}
	d.queued[fp] = struct{}{}
}

// MarkVisited records the terminal outcome for a URL. Re-marking an already
// visited fingerprint keeps the first record; the invariant is at most one
// VisitRecord per fingerprint.
func (d *DedupIndex) MarkVisited(canonicalURL string, outcome VisitOutcome) {
	fp, err := d.Fingerprint(canonicalURL)
	if err != nil {
		return
	}
	delete(d.queued, fp)
	if _, seen := d.visited[fp]; seen {
		return
	}
	d.visited[fp] = VisitRecord{
		Fingerprint: fp,
		VisitedAt:   d.clock.Now(),
		Outcome:     outcome,
	}
}

// VisitedCount returns how many distinct fingerprints have been visited.
func (d *DedupIndex) VisitedCount() int {
	return len(d.visited)
}

func (d *DedupIndex) visitedAt(canonicalURL string) (VisitRecord, bool) {
	fp, err := d.Fingerprint(canonicalURL)
	if err != nil {
		return VisitRecord{}, false
	}
	rec, ok := d.visited[fp]
	return rec, ok
}
