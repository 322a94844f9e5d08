// Package clock provides an injectable time source (session bookkeeping
// in cmd/fsshell) so tests can control time
// deterministically instead of sleeping.
//
// Clock is a local alias for github.com/jacobsa/timeutil.Clock rather than
// a redeclaration, so real and simulated clocks built against either
// package satisfy both.
package clock

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// Clock is a source of the current time.
type Clock = timeutil.Clock

// Real returns the wall-clock Clock, backed by time.Now.
func Real() Clock { return timeutil.RealClock() }

// SimulatedClock is a Clock whose time is advanced explicitly by tests,
// with an After method for tests that need to assert timer-like behavior
// without waiting on the wall clock.
type SimulatedClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ Clock = (*SimulatedClock)(nil)

// NewSimulatedClock returns a SimulatedClock initialized to t.
func NewSimulatedClock(t time.Time) *SimulatedClock {
	return &SimulatedClock{now: t}
}

// Now returns the clock's current simulated time.
func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetTime sets the clock's current simulated time directly.
func (c *SimulatedClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// AdvanceTime moves the clock's current simulated time forward by d.
func (c *SimulatedClock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// After returns a channel that receives the clock's time once it has been
// advanced (via SetTime or AdvanceTime) to or past the current time plus d.
// Unlike time.After, nothing fires until the simulated clock itself moves.
func (c *SimulatedClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	deadline := c.Now().Add(d)

	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			now := c.Now()
			if !now.Before(deadline) {
				ch <- now
				return
			}
		}
	}()
	return ch
}
