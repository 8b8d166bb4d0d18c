// Package crawler implements the bounded crawl core: the frontier, the
// visit-dedup index, the stop-condition evaluator, and the controller loop
// that drives the external fetch and reflect collaborators and feeds
// extracted facts into the record store.
package crawler
