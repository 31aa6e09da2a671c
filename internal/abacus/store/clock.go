package store

import (
	"sync"
	"time"
)

// Clock hands out ordering keys for new records. CreatedAt never goes
// backwards even if the wall clock does, and Seq is strictly increasing for
// the life of the clock, including across Clear.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
	seq  int64
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the CreatedAt and Seq for the next record.
func (c *Clock) Next() (time.Time, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	c.seq++
	return t, c.seq
}
