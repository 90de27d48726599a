// Package dispatchchannel implements the back-pressured, pluggable-wait-
// strategy queue the in-process pipeline is built from (spec component B).
package dispatchchannel

import (
	"context"
	"errors"
	"sync"

	"github.com/trigintafaces/excalibur-dispatch/internal/waitstrategy"
)

// Mode selects bounded vs unbounded capacity behavior.
type Mode int

const (
	Unbounded Mode = iota
	Bounded
)

// FullMode selects what a Bounded channel does when a writer finds it full.
type FullMode int

const (
	// Wait back-pressures the writer until a reader frees a slot.
	Wait FullMode = iota
	// DropNewest silently discards the incoming item.
	DropNewest
	// DropOldest evicts the head item to make room for the incoming one.
	DropOldest
)

// ErrComplete is returned by Read/Write once the channel has been completed
// and, for Read, fully drained, with no completion error set.
var ErrComplete = errors.New("dispatchchannel: complete")

// Options configures a Channel. The zero value is an unbounded channel with
// a Hybrid wait strategy.
type Options struct {
	Mode     Mode
	Capacity int // only meaningful when Mode == Bounded; default 1000
	FullMode FullMode

	// SingleReader/SingleWriter are correctness-neutral hints; this
	// implementation does not special-case them but accepts them so
	// callers can express intent and migrate to a lock-free variant later
	// without changing call sites.
	SingleReader bool
	SingleWriter bool

	WaitStrategy waitstrategy.Strategy
}

// Channel is a typed, bounded or unbounded, FIFO queue with a configurable
// full-mode and pluggable wait strategy.
type Channel[T any] struct {
	mu       sync.Mutex
	items    []T
	opts     Options
	ws       waitstrategy.Strategy
	complete bool
	closeErr error
}

// New creates a Channel with the given options.
func New[T any](opts Options) *Channel[T] {
	if opts.Mode == Bounded && opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.WaitStrategy == nil {
		opts.WaitStrategy = waitstrategy.NewHybrid()
	}
	return &Channel[T]{opts: opts, ws: opts.WaitStrategy}
}

func (c *Channel[T]) isFullLocked() bool {
	return c.opts.Mode == Bounded && len(c.items) >= c.opts.Capacity
}

// TryWrite attempts a non-blocking enqueue. For Unbounded channels this
// always succeeds (unless the channel is already complete). For Bounded
// channels at capacity it succeeds under DropNewest/DropOldest (the item is
// enqueued, or a policy-driven drop happens, either way no backpressure is
// applied) and fails under Wait (the caller must use Write to block).
func (c *Channel[T]) TryWrite(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryWriteLocked(item)
}

func (c *Channel[T]) tryWriteLocked(item T) bool {
	if c.complete {
		return false
	}

	if !c.isFullLocked() {
		c.items = append(c.items, item)
		c.ws.SignalAll()
		return true
	}

	switch c.opts.FullMode {
	case DropNewest:
		// Incoming item discarded; queue unchanged. Not a writer failure.
		return true
	case DropOldest:
		c.items = append(c.items[1:], item)
		c.ws.SignalAll()
		return true
	default: // Wait
		return false
	}
}

// Write enqueues item, blocking under Wait/Bounded back-pressure until a slot
// frees, the channel completes, or cancel fires. Cancellation is observed
// before any externally visible mutation.
func (c *Channel[T]) Write(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancel := ctx.Done()

	for {
		c.mu.Lock()
		if c.tryWriteLocked(item) {
			c.mu.Unlock()
			return nil
		}
		if c.complete {
			c.mu.Unlock()
			return c.completionError()
		}
		c.mu.Unlock()

		if !c.ws.WaitFor(func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return !c.isFullLocked() || c.complete
		}, cancel) {
			return ctx.Err()
		}
	}
}

// TryRead attempts a non-blocking dequeue.
func (c *Channel[T]) TryRead() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryReadLocked()
}

func (c *Channel[T]) tryReadLocked() (T, bool) {
	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	item := c.items[0]
	c.items = c.items[1:]
	c.ws.SignalAll()
	return item, true
}

// TryPeek returns the head item without dequeuing it.
func (c *Channel[T]) TryPeek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	return c.items[0], true
}

// Read dequeues the next item, blocking until one is available, the channel
// completes and drains, or cancel fires.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	cancel := ctx.Done()

	for {
		c.mu.Lock()
		if item, ok := c.tryReadLocked(); ok {
			c.mu.Unlock()
			return item, nil
		}
		if c.complete {
			err := c.completionError()
			c.mu.Unlock()
			return zero, err
		}
		c.mu.Unlock()

		if !c.ws.WaitFor(func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return len(c.items) > 0 || c.complete
		}, cancel) {
			return zero, ctx.Err()
		}
	}
}

// WaitToRead blocks until an item is available or the writer side completes.
// It returns false only once the channel is complete and fully drained with
// no completion error; a completion error is returned via err.
func (c *Channel[T]) WaitToRead(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !c.ws.WaitFor(func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.items) > 0 || c.complete
	}, ctx.Done()) {
		return false, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) > 0 {
		return true, nil
	}
	if c.closeErr != nil {
		return false, c.closeErr
	}
	return false, nil
}

// WaitToWrite blocks until a slot is available for writing or the channel
// completes.
func (c *Channel[T]) WaitToWrite(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !c.ws.WaitFor(func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.isFullLocked() || c.complete
	}, ctx.Done()) {
		return false, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return false, c.closeErr
	}
	return true, nil
}

// Count returns the exact current queue length.
func (c *Channel[T]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Complete signals no more items will be written. A subsequent Read returns
// ErrComplete once the queue drains.
func (c *Channel[T]) Complete() {
	c.mu.Lock()
	c.complete = true
	c.mu.Unlock()
	c.ws.SignalAll()
}

// CompleteErr signals completion and surfaces err to readers once drained.
func (c *Channel[T]) CompleteErr(err error) {
	c.mu.Lock()
	c.complete = true
	c.closeErr = err
	c.mu.Unlock()
	c.ws.SignalAll()
}

// Dispose releases waiters blocked in this channel. Safe to call more than
// once.
func (c *Channel[T]) Dispose() {
	c.CompleteErr(c.closeErr)
}

func (c *Channel[T]) completionError() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrComplete
}
