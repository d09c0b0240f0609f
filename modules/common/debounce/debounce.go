package debounce

import (
	"sync"
	"time"
)

// Option configures a Cell.
type Option[T any] func(*Cell[T])

// WithOnCommit registers a callback invoked with every committed value.
// The callback runs on the timer goroutine, outside the cell's lock, and is
// never called concurrently with itself for commits of the same cell.
func WithOnCommit[T any](fn func(T)) Option[T] {
	return func(c *Cell[T]) {
		c.onCommit = fn
	}
}

// Cell exposes a value that settles only after its input stopped changing.
//
// Every OnInputChanged cancels the pending commit and schedules a new one
// delay later (trailing edge). Intermediate values of a burst are dropped.
//
// Thread-safety: all methods are safe for concurrent use.
type Cell[T any] struct {
	mu        sync.Mutex
	commitMu  sync.Mutex
	delay     time.Duration
	committed T
	timer     *time.Timer
	pending   bool
	closed    bool
	seq       uint64 // invalidates timers that lost the race with a newer input
	onCommit  func(T)
}

// New creates a cell holding initial. A negative delay is clamped to zero.
func New[T any](initial T, delay time.Duration, opts ...Option[T]) *Cell[T] {
	if delay < 0 {
		delay = 0
	}

	c := &Cell[T]{
		delay:     delay,
		committed: initial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnInputChanged schedules a commit of v after the delay.
// Ignored once the cell is closed.
func (c *Cell[T]) OnInputChanged(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if c.timer != nil {
		c.timer.Stop()
	}

	c.seq++
	currentSeq := c.seq
	c.pending = true

	c.timer = time.AfterFunc(c.delay, func() {
		c.fire(currentSeq, v)
	})
}

func (c *Cell[T]) fire(seq uint64, v T) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	// Only commit if this is still the latest scheduled input
	if c.closed || !c.pending || c.seq != seq {
		c.mu.Unlock()
		return
	}
	c.committed = v
	c.pending = false
	c.timer = nil
	onCommit := c.onCommit
	c.mu.Unlock()

	if onCommit != nil {
		onCommit(v)
	}
}

// Value returns the most recently committed value.
func (c *Cell[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Pending returns true if a commit is scheduled.
func (c *Cell[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Delay returns the settle delay.
func (c *Cell[T]) Delay() time.Duration {
	return c.delay
}

// Close cancels any pending commit. No commit happens after Close returns,
// except one whose callback was already running. Safe to call more than once.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	c.pending = false
	c.closed = true
}
