package storage

import (
	"sync"
	"time"
)

// Clock hands out millisecond timestamps that never repeat within a process.
// Derived keys embed them, so two renders of one original finishing in the
// same millisecond still get distinct keys.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
