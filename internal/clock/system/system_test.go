// Package system includes tests for the real clock adapter.
package system

import (
	"testing"
	"time"
)

func TestClockNow(t *testing.T) {
	t.Parallel()

	c := New()
	first := c.Now()
	second := c.Now()
	if second.Before(first) {
		t.Fatalf("clock went backwards: %v then %v", first, second)
	}
	if first.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", first.Location())
	}
}
