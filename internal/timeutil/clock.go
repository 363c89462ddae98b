// Package timeutil holds the receiver's notion of "now" so that time sync
// replies and reading timestamps can be pinned in tests.
package timeutil

import (
	"sync/atomic"
	"time"
)

// Clock reports the current wall time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock only moves when told to. Safe for concurrent use.
type MockClock struct {
	now atomic.Pointer[time.Time]
}

func NewMockClock(t time.Time) *MockClock {
	c := &MockClock{}
	c.Set(t)
	return c
}

func (c *MockClock) Now() time.Time { return *c.now.Load() }

func (c *MockClock) Set(t time.Time) { c.now.Store(&t) }

// Advance moves the clock forward by d (backwards for negative d).
func (c *MockClock) Advance(d time.Duration) {
	for {
		old := c.now.Load()
		next := old.Add(d)
		if c.now.CompareAndSwap(old, &next) {
			return
		}
	}
}

// UnixSeconds converts t to seconds since the Unix epoch, keeping the
// sub-second part as a fraction.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
