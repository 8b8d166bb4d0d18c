package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type testHasher struct{}

func (testHasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testBudget() StopBudget {
	return StopBudget{
		MaxActions:       40,
		MaxWallClock:     120 * time.Second,
		PlateauWindow:    4,
		PlateauThreshold: 0.15,
	}
}
