// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Sleep pauses the current goroutine for at least the duration d.
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// MockClock is a manually controlled clock for testing. Sleep returns
// immediately, records the duration and advances the clock by it, so code
// paced by Sleep observes time passing without waiting.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the sleep duration, advances the clock and returns
// immediately.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
}

// OnSleep registers fn to run after every Sleep. Tests use it to stop a loop
// after a fixed number of iterations.
func (c *MockClock) OnSleep(fn func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = fn
}

// Sleeps returns all recorded sleep durations.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.sleeps))
	copy(result, c.sleeps)
	return result
}
