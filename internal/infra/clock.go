package infra

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// SystemClock implements domain.Clock with the real wall clock.
type SystemClock struct{}

// NewSystemClock creates the default clock.
func NewSystemClock() *SystemClock { return &SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock implements domain.Clock with a settable time, for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at the given instant.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to a specific instant.
func (c *FakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	_ domain.Clock = (*SystemClock)(nil)
	_ domain.Clock = (*FakeClock)(nil)
)
