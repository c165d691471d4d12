package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant handed out by a DeterministicClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe, strictly increasing clock for
// tests. Each call to Now advances by one second from Epoch, so stored
// timestamps and golden output are identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	tick int64
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch+1s.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances the clock and returns the new instant.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return Epoch.Add(time.Duration(c.tick) * time.Second)
}

// Current returns the last instant handed out, or Epoch if none.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(time.Duration(c.tick) * time.Second)
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}
