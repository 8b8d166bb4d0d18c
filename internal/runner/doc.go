// Package runner owns run lifecycle outside the crawl loop itself: the run
// queue, the run registry exposed to the API, and the worker pool that drains
// the queue into controller executions.
package runner
