package runner

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the run deadline shared by every worker. Reads are lock-free.
type Clock struct {
	duration time.Duration
	now      func() time.Time

	start atomic.Pointer[time.Time] // nil until Start; keeps the monotonic reading
	done  chan struct{}
	once  sync.Once
	timer *time.Timer
	mu    sync.Mutex
}

// NewClock returns a clock that expires duration after Start.
func NewClock(duration time.Duration) *Clock {
	return newClock(duration, time.Now)
}

func newClock(duration time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{duration: duration, now: now, done: make(chan struct{})}
}

// Start records the begin time and arms Done. Later calls are no-ops.
func (c *Clock) Start() {
	c.once.Do(func() {
		start := c.now()
		c.start.Store(&start)
		c.mu.Lock()
		c.timer = time.AfterFunc(c.duration, func() { close(c.done) })
		c.mu.Unlock()
	})
}

// Stop releases the timer. Done is not closed if it has not fired yet.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Expired reports whether the duration has elapsed since Start.
func (c *Clock) Expired() bool {
	return c.started() && c.Elapsed() >= c.duration
}

// Elapsed is the time since Start, or zero before it.
func (c *Clock) Elapsed() time.Duration {
	start := c.start.Load()
	if start == nil {
		return 0
	}
	return c.now().Sub(*start)
}

// Remaining is the time left before expiry, never negative.
func (c *Clock) Remaining() time.Duration {
	if !c.started() {
		return c.duration
	}
	if left := c.duration - c.Elapsed(); left > 0 {
		return left
	}
	return 0
}

// Done is closed when the duration elapses after Start.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

func (c *Clock) started() bool {
	return c.start.Load() != nil
}
