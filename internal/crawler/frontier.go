package crawler

import "sort"

// Frontier is the ordered queue of not-yet-visited crawl targets. Ordering is
// breadth-first: strictly lowest depth first, FIFO within one depth level.
// That bounds latency-to-discovery for shallow pages and avoids depth-first
// traps in link cycles.
//
// Like the dedup index, a Frontier belongs to a single controller goroutine.
type Frontier struct {
	buckets map[int][]CrawlTarget
	depths  []int
	size    int
}

// NewFrontier builds an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		buckets: make(map[int][]CrawlTarget),
	}
}

// Push appends a target to its depth bucket. Callers are expected to have
// consulted the dedup index first; the frontier itself does not re-check.
func (f *Frontier) Push(target CrawlTarget) {
	if _, ok := f.buckets[target.Depth]; !ok {
		idx := sort.SearchInts(f.depths, target.Depth)
		f.depths = append(f.depths, 0)
		copy(f.depths[idx+1:], f.depths[idx:])
		f.depths[idx] = target.Depth
	}
	f.buckets[target.Depth] = append(f.buckets[target.Depth], target)
	f.size++
}

// Next pops the oldest target at the shallowest depth. The second return is
// false when the frontier is exhausted.
func (f *Frontier) Next() (CrawlTarget, bool) {
	for len(f.depths) > 0 {
		depth := f.depths[0]
		bucket := f.buckets[depth]
		if len(bucket) == 0 {
			delete(f.buckets, depth)
			f.depths = f.depths[1:]
			continue
		}
		target := bucket[0]
		f.buckets[depth] = bucket[1:]
		f.size--
		return target, true
	}
	return CrawlTarget{}, false
}

// Len returns the number of pending targets.
func (f *Frontier) Len() int {
	return f.size
}
