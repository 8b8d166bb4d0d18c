// Package store persists the organization and project dataset as JSON
// collections with atomic whole-collection revision swaps, upsert-by-identity
// merge semantics, and a cross-process dataset lock that serializes writers.
package store
