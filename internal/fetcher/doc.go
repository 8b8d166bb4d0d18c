// Package fetcher provides page snapshot construction shared by the concrete
// fetchers, plus a composite fetcher that promotes script-heavy pages from a
// plain HTTP probe to a headless browser.
package fetcher
