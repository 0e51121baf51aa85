package mock

import (
	"sync"
	"time"
)

// Clock is the time source shared by the mocks and the code under test.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock only moves when a test moves it. Token lifetimes on the mock
// OAuth server and staleness checks in the client both read it.
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMockClock starts at t, or at the wall clock when t is zero.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps to t. Going backwards is allowed.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ExpirePast moves the clock one second beyond expiresAt, the point where
// an access token with that expiry is rejected.
func (c *MockClock) ExpirePast(expiresAt time.Time) {
	c.Set(expiresAt.Add(time.Second))
}

// StaleBy moves the clock to window before expiresAt, the latest moment a
// token still counts as fresh when refreshed window ahead of expiry.
func (c *MockClock) StaleBy(expiresAt time.Time, window time.Duration) {
	c.Set(expiresAt.Add(-window))
}
